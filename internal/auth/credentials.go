package auth

import (
	"encoding/json"
	"fmt"
	"os"
)

// ServiceAccount はサービスアカウント認証情報ファイルの内容。
// IDトークン検証にはproject_idのみを使用する。
type ServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// LoadServiceAccount はサービスアカウント認証情報ファイルを読み込む。
// project_idが空の場合はエラーを返す。
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if sa.ProjectID == "" {
		return nil, fmt.Errorf("project_id is missing in credentials file %s", path)
	}

	return &sa, nil
}
