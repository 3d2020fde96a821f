package database

import (
	"SocialSchedulerAPI/models"
	"SocialSchedulerAPI/utils"
)

const connectionColumns = `id, user_id, platform, access_token, refresh_token,
		token_type, expires_at, platform_user_id, platform_page_id, created_at, updated_at`

// SaveConnection upserts the connection for (user, platform). Tokens are
// encrypted at rest.
func (d *Database) SaveConnection(conn *models.Connection) error {
	accessToken, err := utils.EncryptToken(conn.AccessToken)
	if err != nil {
		return err
	}
	refreshToken, err := utils.EncryptToken(conn.RefreshToken)
	if err != nil {
		return err
	}

	query := `INSERT INTO connections (id, user_id, platform, access_token, refresh_token, token_type,
			  expires_at, platform_user_id, platform_page_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  ON CONFLICT (user_id, platform)
			  DO UPDATE SET access_token = $4, refresh_token = $5, token_type = $6,
			                expires_at = $7, platform_user_id = $8, platform_page_id = $9, updated_at = $11`

	_, err = d.DB.Exec(query, conn.ID, conn.UserID, conn.Platform, accessToken, refreshToken,
		conn.TokenType, conn.ExpiresAt, conn.PlatformUserID, conn.PlatformPageID,
		conn.CreatedAt, conn.UpdatedAt)
	return err
}

func (d *Database) GetConnection(userID string, platform models.Platform) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 AND platform = $2`
	return d.scanConnection(d.DB.QueryRow(query, userID, platform))
}

func (d *Database) GetConnectionByID(id string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	return d.scanConnection(d.DB.QueryRow(query, id))
}

func (d *Database) ListConnections(userID string) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 ORDER BY platform`

	rows, err := d.DB.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := []*models.Connection{}
	for rows.Next() {
		conn, err := d.scanConnection(rows)
		if err != nil {
			continue
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

func (d *Database) DeleteConnection(userID string, platform models.Platform) error {
	query := `DELETE FROM connections WHERE user_id = $1 AND platform = $2`
	_, err := d.DB.Exec(query, userID, platform)
	return err
}

func (d *Database) scanConnection(row rowScanner) (*models.Connection, error) {
	conn := &models.Connection{}
	err := row.Scan(&conn.ID, &conn.UserID, &conn.Platform, &conn.AccessToken,
		&conn.RefreshToken, &conn.TokenType, &conn.ExpiresAt, &conn.PlatformUserID,
		&conn.PlatformPageID, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if conn.AccessToken, err = utils.DecryptToken(conn.AccessToken); err != nil {
		return nil, err
	}
	if conn.RefreshToken, err = utils.DecryptToken(conn.RefreshToken); err != nil {
		return nil, err
	}
	return conn, nil
}
