package storage

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/callwaiting/tts-service/internal/apierr"
)

// audioClaims scope a signed URL to exactly one stored object.
type audioClaims struct {
	TenantID string `json:"tenant_id"`
	FileID   string `json:"file_id"`
	jwt.RegisteredClaims
}

// URLSigner mints and verifies the time-limited tokens that make
// object-store audio URLs self-authorizing.
type URLSigner struct {
	secret []byte
	expiry time.Duration
}

func NewURLSigner(secret string, expiry time.Duration) *URLSigner {
	return &URLSigner{secret: []byte(secret), expiry: expiry}
}

func (s *URLSigner) Expiry() time.Duration { return s.expiry }

func (s *URLSigner) Sign(tenantID, fileID string) (string, error) {
	claims := &audioClaims{
		TenantID: tenantID,
		FileID:   fileID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify checks the token signature, expiry and that the claims match the
// requested object. Any mismatch reads as an expired or foreign link.
func (s *URLSigner) Verify(tokenString, tenantID, fileID string) error {
	token, err := jwt.ParseWithClaims(tokenString, &audioClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return apierr.Wrap(apierr.Unauthenticated, err, "Invalid or expired audio URL")
	}

	claims, ok := token.Claims.(*audioClaims)
	if !ok || !token.Valid || claims.TenantID != tenantID || claims.FileID != fileID {
		return apierr.E(apierr.Unauthenticated, "Invalid or expired audio URL")
	}

	return nil
}
