package main

import (
	"time"

	"warpledger/config"
	"warpledger/rpc"
)

func issueToken(auth config.Auth, signingSecret string, account [20]byte, ttl time.Duration) (string, error) {
	return rpc.IssueToken(rpc.AuthConfig{
		HMACSecret: signingSecret,
		Issuer:     auth.Issuer,
		Audience:   auth.Audience,
	}, account, ttl, time.Now())
}
