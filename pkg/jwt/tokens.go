package jwt

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// UnsubscribeClaims is the payload of a schedule unsubscribe token.
type UnsubscribeClaims struct {
	SubscriberID string `json:"subscriber_id"`
	ScheduleID   string `json:"schedule_id"`
	jwtlib.RegisteredClaims
}

// GenerateUnsubscribeToken issues a signed token that authorizes removing a
// subscriber from a schedule. Tokens do not expire; a subscription mail may
// sit in an inbox for months.
func GenerateUnsubscribeToken(subscriberID, scheduleID, secret string) (string, error) {
	claims := UnsubscribeClaims{
		SubscriberID: subscriberID,
		ScheduleID:   scheduleID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:   "artemis-benchmarking",
			IssuedAt: jwtlib.NewNumericDate(time.Now()),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseUnsubscribeToken validates and extracts claims from token.
func ParseUnsubscribeToken(token string, secret string) (*UnsubscribeClaims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &UnsubscribeClaims{}, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*UnsubscribeClaims)
	if !ok || !parsed.Valid {
		return nil, jwtlib.ErrTokenInvalidClaims
	}
	return claims, nil
}
