package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 支持的日期格式，依次尝试
var dateLayouts = []string{
	time.DateTime,
	time.DateOnly,
	time.RFC3339,
}

// ParseDate 解析 YYYY-MM-DD、YYYY-MM-DD HH:MM:SS、RFC3339 或 Unix 秒，结果为 UTC
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.UnixMilli(int64(secs * 1000)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid date format %q, use 'YYYY-MM-DD' or 'YYYY-MM-DD HH:MM:SS'", s)
}

// LoadBenchFile 读取 .json/.yaml/.yml 参数文件，文件中未出现的字段沿用 base
func LoadBenchFile(path string, base *Config) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bench file: %w", err)
	}

	cfg := base.Clone()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(raw, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		return nil, fmt.Errorf("unsupported bench file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse bench file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bench file %s: %w", path, err)
	}
	return cfg, nil
}
