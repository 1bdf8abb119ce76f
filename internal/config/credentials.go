package config

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/takashabe/bigquery-mcp/internal/errs"
)

type ServiceAccountKey struct {
	JSON      []byte
	ProjectID string
}

// DecodeServiceAccountKey decodes a base64-encoded service account JSON key.
func DecodeServiceAccountKey(encoded string) (*ServiceAccountKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errs.New(errs.Configuration, "service account key is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errs.Wrap(errs.Configuration, "service account key is not valid base64", err)
	}

	var info struct {
		Type      string `json:"type"`
		ProjectID string `json:"project_id"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, errs.Wrap(errs.Configuration, "service account key is not valid JSON", err)
	}

	return &ServiceAccountKey{
		JSON:      raw,
		ProjectID: info.ProjectID,
	}, nil
}
