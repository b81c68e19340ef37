package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eshaffer321/petsgo-go/pkg/petsgo"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	flagQuery    = "query"
	flagHeader   = "header"
	flagData     = "data"
	flagUsername = "username"
	flagPassword = "password"
)

// newQueryCommand builds get and delete
func newQueryCommand(a *app, method string) *cobra.Command {
	var query, headers []string
	cmd := &cobra.Command{
		Use:   method + " <path>",
		Short: fmt.Sprintf("Send a %s request and print the payload", strings.ToUpper(method)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				return a.send(ctx, cmd.OutOrStdout(), method, args[0], nil, query, headers)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&query, flagQuery, "q", nil, "query parameter key=value, repeatable")
	cmd.Flags().StringArrayVarP(&headers, flagHeader, "H", nil, "header key:value, repeatable")
	return cmd
}

// newBodyCommand builds post, put and patch
func newBodyCommand(a *app, method string) *cobra.Command {
	var query, headers []string
	var data string
	cmd := &cobra.Command{
		Use:   method + " <path>",
		Short: fmt.Sprintf("Send a %s request and print the payload", strings.ToUpper(method)),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				body, err := readBody(data, cmd.InOrStdin())
				if err != nil {
					return err
				}
				return a.send(ctx, cmd.OutOrStdout(), method, args[0], body, query, headers)
			})
		},
	}
	cmd.Flags().StringVarP(&data, flagData, "d", "", "request body; @file reads a file, - reads stdin")
	cmd.Flags().StringArrayVarP(&query, flagQuery, "q", nil, "query parameter key=value, repeatable")
	cmd.Flags().StringArrayVarP(&headers, flagHeader, "H", nil, "header key:value, repeatable")
	return cmd
}

func newLoginCommand(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				user, err := a.client.Auth.Login(ctx, username, password)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
	cmd.Flags().StringVarP(&username, flagUsername, "u", "", "account name")
	cmd.Flags().StringVarP(&password, flagPassword, "p", "", "password")
	_ = cmd.MarkFlagRequired(flagUsername)
	_ = cmd.MarkFlagRequired(flagPassword)
	return cmd
}

func newRefreshCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the saved token for a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				if err := a.client.Auth.RefreshAndApply(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), a.client.Auth.CurrentUser())
			})
		},
	}
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				err := a.client.Auth.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return err
			})
		},
	}
}

func newWhoamiCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the saved user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				user := a.client.Auth.CurrentUser()
				if user == nil {
					return petsgo.ErrNotAuthenticated
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
}

func newProfileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Fetch the signed-in user's profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, func(ctx context.Context) error {
				profile, err := a.client.Auth.Profile(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), profile)
			})
		},
	}
}

func (a *app) send(ctx context.Context, out io.Writer, method, path string, body interface{}, query, headers []string) error {
	params, err := parseQuery(query)
	if err != nil {
		return err
	}
	hdrs, err := parseHeaders(headers)
	if err != nil {
		return err
	}

	var result interface{}
	err = a.client.Request(ctx, path, &petsgo.RequestConfig{
		Method:  method,
		Data:    body,
		Params:  params,
		Headers: hdrs,
	}, &result)
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func parseQuery(pairs []string) (petsgo.Params, error) {
	var params petsgo.Params
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query %q, want key=value", pair)
		}
		params = params.Add(key, value)
	}
	return params, nil
}

func parseHeaders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, want key:value", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

// readBody resolves -d. The body is sent verbatim.
func readBody(data string, stdin io.Reader) (interface{}, error) {
	var raw []byte
	switch {
	case data == "":
		return nil, nil
	case data == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "read stdin")
		}
		raw = b
	case strings.HasPrefix(data, "@"):
		b, err := os.ReadFile(strings.TrimPrefix(data, "@"))
		if err != nil {
			return nil, errors.Wrap(err, "read body file")
		}
		raw = b
	default:
		raw = []byte(data)
	}
	return raw, nil
}

func printJSON(out io.Writer, v interface{}) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(out, s)
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode output")
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
