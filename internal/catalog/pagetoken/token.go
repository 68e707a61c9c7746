// Package pagetoken encodes catalog page state into the opaque token carried
// by callback round-trips. The token is base64(JSON) so a search query can
// never collide with the framing, unlike the old "page__query" scheme.
package pagetoken

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Version is the current token schema version.
const Version = 1

var ErrInvalidToken = errors.New("invalid page token")

// Token addresses one page of an optionally filtered catalog listing.
type Token struct {
	Version int    `json:"v"`
	Page    int    `json:"p"`
	Query   string `json:"q,omitempty"`
}

func New(page int, query string) Token {
	if page < 1 {
		page = 1
	}
	return Token{Version: Version, Page: page, Query: query}
}

// Encode serializes the token to a base64 string safe for callback data.
func (t Token) Encode() string {
	data, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Prev returns the token for the previous page. Emitted only when there is
// one, i.e. page > 1.
func (t Token) Prev() (Token, bool) {
	if t.Page <= 1 {
		return Token{}, false
	}
	return New(t.Page-1, t.Query), true
}

// Next returns the token for the following page, bounded by maxPage.
func (t Token) Next(maxPage int) (Token, bool) {
	if t.Page >= maxPage {
		return Token{}, false
	}
	return New(t.Page+1, t.Query), true
}

// Decode parses a token. Tokens minted by the previous generation of the bot
// were "<page>" or "<page>__<query>"; both legacy forms still decode.
func Decode(s string) (Token, error) {
	if s == "" {
		return New(1, ""), nil
	}

	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		var t Token
		if err := json.Unmarshal(data, &t); err == nil && t.Page >= 1 {
			return t, nil
		}
	}

	return decodeLegacy(s)
}

func decodeLegacy(s string) (Token, error) {
	pageStr, query := s, ""
	if i := strings.Index(s, "__"); i >= 0 {
		pageStr, query = s[:i], s[i+2:]
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return Token{}, ErrInvalidToken
	}
	return New(page, query), nil
}

// MaxPage computes the last page number for a filtered total, minimum 1.
func MaxPage(total, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	n := (total + pageSize - 1) / pageSize
	if n < 1 {
		return 1
	}
	return n
}
