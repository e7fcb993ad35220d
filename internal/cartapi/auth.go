package cartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	pathAuthLogin  = "/api/auth/app/login"
	pathAuthVerify = "/api/auth/app/verify"
)

// RequestLoginCode starts the phone login flow and returns the one-time
// code the service issued for it.
func (client *Client) RequestLoginCode(ctx context.Context, phone string) (string, error) {
	encoded, err := json.Marshal(map[string]string{"phone": phone})
	if err != nil {
		return "", fmt.Errorf("request login code: encode: %w", err)
	}
	body, err := client.do(ctx, http.MethodPost, pathAuthLogin, "", encoded, nil)
	if err != nil {
		return "", fmt.Errorf("request login code: %w", err)
	}
	var payload struct {
		OTP string `json:"otp"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("request login code: decode: %w", err)
	}
	return payload.OTP, nil
}

// VerifyLoginCode redeems the one-time code and returns the access token.
func (client *Client) VerifyLoginCode(ctx context.Context, phone string, code string) (string, error) {
	encoded, err := json.Marshal(map[string]string{"phone": phone, "otp": code})
	if err != nil {
		return "", fmt.Errorf("verify login code: encode: %w", err)
	}
	body, err := client.do(ctx, http.MethodPost, pathAuthVerify, "", encoded, nil)
	if err != nil {
		return "", fmt.Errorf("verify login code: %w", err)
	}
	var payload struct {
		Tokens struct {
			AccessToken string `json:"accessToken"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("verify login code: decode: %w", err)
	}
	if payload.Tokens.AccessToken == "" {
		return "", fmt.Errorf("verify login code: response carried no access token")
	}
	return payload.Tokens.AccessToken, nil
}
