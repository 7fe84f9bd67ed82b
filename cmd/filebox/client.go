package main

import (
	"errors"
	"fmt"

	"filebox/internal/api"
	"filebox/internal/config"
)

var errNotLoggedIn = errors.New("not logged in")

// withClient runs fn against the configured server without credentials.
func withClient(cfg *config.Config, fn func(*api.Client) error) error {
	return fn(api.NewClient(cfg.APIURL))
}

// withAuthClient runs fn with the saved token, or FILEBOX_TOKEN when set.
func withAuthClient(cfg *config.Config, fn func(*api.Client) error) error {
	client := api.NewClient(cfg.APIURL)
	if !client.HasToken() {
		token, err := loadToken()
		if err != nil {
			return err
		}
		client.WithToken(token)
	}
	if !client.HasToken() {
		return fmt.Errorf("%w: run 'filebox login' first", errNotLoggedIn)
	}
	return fn(client)
}
