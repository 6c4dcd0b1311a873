package client

import (
	"context"
	"fmt"
)

// TestHelper provides utilities for creating signed-up users in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// TestPassword is the password every helper-created user gets.
const TestPassword = "correct-horse"

// CreateUser signs up username and returns a client for the server together
// with the signup result.
func (h *TestHelper) CreateUser(ctx context.Context, username string) (*Client, AuthResult, error) {
	c := New(h.BaseURL)
	res, err := c.Signup(ctx, username, TestPassword, username+" Tester")
	if err != nil {
		return nil, AuthResult{}, fmt.Errorf("signup %s: %w", username, err)
	}
	return c, res, nil
}

// GetToken signs up username and returns just the token.
func (h *TestHelper) GetToken(ctx context.Context, username string) (string, error) {
	_, res, err := h.CreateUser(ctx, username)
	if err != nil {
		return "", err
	}
	return res.Token, nil
}
