package repo

import (
	"context"
	"fmt"

	"wordbento/internal/domain"
	"wordbento/internal/infra"
	"wordbento/internal/sqlinline"
)

// AssetRepositoryPG implements domain.AssetRepository using PostgreSQL.
type AssetRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(sql infra.SQLExecutor) *AssetRepositoryPG {
	return &AssetRepositoryPG{sql: sql}
}

// ListByOwner returns all assets recorded against the owner, oldest first.
func (r *AssetRepositoryPG) ListByOwner(ctx context.Context, ownerID string) ([]domain.Asset, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListAssetsByOwner, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		var asset domain.Asset
		if err := rows.Scan(&asset.ID, &asset.OwnerID, &asset.ObjectKey, &asset.Prompt, &asset.ContentType, &asset.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

// DeleteByOwner removes every asset row of the owner.
func (r *AssetRepositoryPG) DeleteByOwner(ctx context.Context, ownerID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteAssetsByOwner, ownerID); err != nil {
		return fmt.Errorf("delete assets: %w", err)
	}
	return nil
}

// Create records a stored object against its owner.
func (r *AssetRepositoryPG) Create(ctx context.Context, asset *domain.Asset) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertAsset, asset.OwnerID, asset.ObjectKey, asset.Prompt, asset.ContentType)
	if err := row.Scan(&asset.ID, &asset.CreatedAt); err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}
