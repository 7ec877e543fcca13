package migrate

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// sqliteSchema mirrors the goose migrations for the local sqlite driver, which
// lacks enum types and native arrays. imagens holds the pq array literal text.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS produtos (
		id TEXT PRIMARY KEY,
		nome TEXT NOT NULL,
		categoria TEXT NOT NULL CHECK (categoria IN ('grafico', 'estrutura_lojas', 'brindes')),
		quantidade_disponivel INTEGER NOT NULL DEFAULT 0 CHECK (quantidade_disponivel >= 0),
		imagens TEXT NOT NULL DEFAULT '{}',
		imagem_capa_index INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS produtos_nome_key ON produtos (lower(nome))`,
	`CREATE TABLE IF NOT EXISTS retiradas (
		id TEXT PRIMARY KEY,
		produto_id TEXT NOT NULL,
		produto_nome TEXT NOT NULL,
		produto_categoria TEXT NOT NULL,
		quantidade INTEGER NOT NULL CHECK (quantidade > 0),
		destino TEXT NOT NULL,
		supervisor TEXT NOT NULL,
		foto_url TEXT,
		assinatura_url TEXT,
		tipo TEXT NOT NULL DEFAULT 'withdrawal' CHECK (tipo IN ('withdrawal', 'manual_adjustment')),
		motivo TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS retiradas_created_at_idx ON retiradas (created_at)`,
	`CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		nome TEXT NOT NULL,
		senha_hash TEXT NOT NULL,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS admins_email_key ON admins (lower(email))`,
}

// ApplySQLite creates the schema on a sqlite connection. It is idempotent.
func ApplySQLite(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	for _, stmt := range sqliteSchema {
		if err := conn.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply sqlite schema: %w", err)
		}
	}
	return nil
}
