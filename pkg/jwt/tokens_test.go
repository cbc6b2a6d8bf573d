package jwt

import "testing"

func TestUnsubscribeTokenRoundTrip(t *testing.T) {
	token, err := GenerateUnsubscribeToken("sub-1", "sched-1", "secret")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := ParseUnsubscribeToken(token, "secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.SubscriberID != "sub-1" {
		t.Fatalf("unexpected subscriber id %s", claims.SubscriberID)
	}
	if claims.ScheduleID != "sched-1" {
		t.Fatalf("unexpected schedule id %s", claims.ScheduleID)
	}
}

func TestUnsubscribeTokenWrongSecret(t *testing.T) {
	token, err := GenerateUnsubscribeToken("sub-1", "sched-1", "secret")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := ParseUnsubscribeToken(token, "other"); err == nil {
		t.Fatalf("expected validation failure with wrong secret")
	}
}
