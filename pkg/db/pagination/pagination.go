package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 250
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
}

type Cursor struct {
	ID string `json:"id,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Limit clamps the requested page size.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return DefaultPageSize
	case p.PageSize > MaxPageSize:
		return MaxPageSize
	default:
		return p.PageSize
	}
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, ErrInvalidPageToken
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, ErrInvalidPageToken
	}
	return &cursor, nil
}

// Apply orders by id descending and seeks past the page token. It fetches one extra row
// so BuildPageInfo can tell whether another page exists.
func Apply(query *gorm.DB, p Pagination) (*gorm.DB, error) {
	query = query.Order("id DESC").Limit(p.Limit() + 1)
	if p.PageToken == "" {
		return query, nil
	}

	cursor, err := DecodeCursor(p.PageToken)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(cursor.ID, 10, 64)
	if err != nil {
		return nil, ErrInvalidPageToken
	}
	return query.Where("id < ?", id), nil
}

// BuildPageInfo trims the look-ahead row and returns the trimmed slice with its page info.
func BuildPageInfo[T any](data []T, p Pagination, idOf func(T) int64) ([]T, PageInfo) {
	limit := p.Limit()
	if len(data) <= limit {
		return data, PageInfo{HasMore: false}
	}

	data = data[:limit]
	token, _ := EncodeCursor(Cursor{ID: strconv.FormatInt(idOf(data[len(data)-1]), 10)})
	return data, PageInfo{HasMore: true, NextPageToken: token}
}
