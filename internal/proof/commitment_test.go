package proof

import (
	"math/big"
	"testing"
	"time"

	"github.com/bodega-labs/bodegad/internal/domain"
)

func testPosition() domain.PrivatePosition {
	return domain.PrivatePosition{
		UserID:    "user-1",
		Amount:    big.NewInt(5_000),
		Outcome:   domain.OutcomeYes,
		Nonce:     big.NewInt(123456789),
		MarketID:  "mkt-1",
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
	}
}

func TestCommitmentDeterministic(t *testing.T) {
	p := testPosition()
	if Commitment(p) != Commitment(p) {
		t.Error("same position produced different commitments")
	}
}

func TestCommitmentBindsEveryField(t *testing.T) {
	base := Commitment(testPosition())

	cases := []struct {
		name   string
		mutate func(*domain.PrivatePosition)
	}{
		{"user", func(p *domain.PrivatePosition) { p.UserID = "user-2" }},
		{"amount", func(p *domain.PrivatePosition) { p.Amount = big.NewInt(5_001) }},
		{"outcome", func(p *domain.PrivatePosition) { p.Outcome = domain.OutcomeNo }},
		{"nonce", func(p *domain.PrivatePosition) { p.Nonce = big.NewInt(123456790) }},
		{"market", func(p *domain.PrivatePosition) { p.MarketID = "mkt-2" }},
		{"timestamp", func(p *domain.PrivatePosition) { p.Timestamp = p.Timestamp.Add(time.Second) }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := testPosition()
			c.mutate(&p)
			if Commitment(p) == base {
				t.Errorf("changing %s did not change the commitment", c.name)
			}
		})
	}
}

func TestNonceSeparatesIdenticalPositions(t *testing.T) {
	a, b := testPosition(), testPosition()
	b.Nonce = big.NewInt(987654321)
	if Commitment(a) == Commitment(b) {
		t.Error("two positions differing only in nonce collided")
	}
}

func TestUserSecretDeterministic(t *testing.T) {
	s1 := UserSecret("user-1", "0xabc")
	s2 := UserSecret("user-1", "0xabc")
	if s1 != s2 {
		t.Error("user secret not deterministic")
	}
	if UserSecret("user-2", "0xabc") == s1 {
		t.Error("different users share a secret")
	}
	if UserSecret("user-1", "0xdef") == s1 {
		t.Error("different addresses share a secret")
	}
}

func TestNullifierUniquePerPosition(t *testing.T) {
	secret := UserSecret("user-1", "0xabc")
	a, b := testPosition(), testPosition()
	b.Nonce = big.NewInt(42)

	na, nb := Nullifier(a, secret), Nullifier(b, secret)
	if na == nb {
		t.Error("distinct positions share a nullifier")
	}
	if Nullifier(a, secret) != na {
		t.Error("nullifier not deterministic")
	}
	if Nullifier(a, UserSecret("user-2", "0xabc")) == na {
		t.Error("nullifier does not bind the owner secret")
	}
}
