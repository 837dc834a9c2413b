package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

// apiFlags registers the endpoint and token flags shared by API commands.
type apiFlags struct {
	endpoint *string
	token    *string
}

func registerAPIFlags(fs *flag.FlagSet) apiFlags {
	endpoint := os.Getenv(endpointEnv)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return apiFlags{
		endpoint: fs.String("api", endpoint, "rescued base URL"),
		token:    fs.String("token", os.Getenv(tokenEnv), "bearer token for the rescued API"),
	}
}

func (f apiFlags) client() (*apiClient, error) {
	if strings.TrimSpace(*f.token) == "" {
		return nil, fmt.Errorf("--token or %s is required", tokenEnv)
	}
	return newAPIClient(*f.endpoint, *f.token)
}

// invoke runs one API call and prints the decoded response.
func invoke(stdout, stderr io.Writer, flags apiFlags, method, path string, body interface{}) int {
	client, err := flags.client()
	if err != nil {
		return printError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	var out json.RawMessage
	if err := client.call(ctx, method, path, body, &out); err != nil {
		return printError(stderr, err)
	}
	if len(out) == 0 {
		fmt.Fprintln(stdout, "ok")
		return 0
	}
	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return printError(stderr, err)
	}
	fmt.Fprintln(stdout, string(pretty))
	return 0
}

func parseBool(value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("expected true or false, got %q", value)
	}
	return parsed, nil
}

func seg(value string) string {
	return url.PathEscape(strings.TrimSpace(value))
}

func runRescue(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rescue", stderr)
	api := registerAPIFlags(fs)
	ct := fs.String("collateral-type", "", "collateral type of the vault")
	handler := fs.String("handler", "", "vault handler address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*ct) == "" || strings.TrimSpace(*handler) == "" {
		return printError(stderr, errors.New("--collateral-type and --handler are required"))
	}
	body := map[string]string{"collateralType": strings.TrimSpace(*ct), "handler": strings.TrimSpace(*handler)}
	return invoke(stdout, stderr, api, http.MethodPost, "/v1/rescues", body)
}

func runCollateral(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("collateral", stderr)
	api := registerAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return printError(stderr, errors.New("collateral subcommand required (list, get, register, reassign)"))
	}
	switch {
	case rest[0] == "list" && len(rest) == 1:
		return invoke(stdout, stderr, api, http.MethodGet, "/v1/collateral-types", nil)
	case rest[0] == "get" && len(rest) == 2:
		return invoke(stdout, stderr, api, http.MethodGet, "/v1/collateral-types/"+seg(rest[1]), nil)
	case rest[0] == "register" && len(rest) == 3:
		body := map[string]string{"collateralType": strings.TrimSpace(rest[1]), "token": strings.TrimSpace(rest[2])}
		return invoke(stdout, stderr, api, http.MethodPost, "/v1/collateral-types", body)
	case rest[0] == "reassign" && len(rest) == 3:
		body := map[string]string{"token": strings.TrimSpace(rest[2])}
		return invoke(stdout, stderr, api, http.MethodPut, "/v1/collateral-types/"+seg(rest[1]), body)
	default:
		return printError(stderr, fmt.Errorf("invalid collateral invocation: %s", strings.Join(rest, " ")))
	}
}

func runVault(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("vault", stderr)
	api := registerAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return printError(stderr, errors.New("vault subcommand required (list, get, set)"))
	}
	if rest[0] == "list" && len(rest) == 1 {
		return invoke(stdout, stderr, api, http.MethodGet, "/v1/vaults", nil)
	}
	if len(rest) < 2 {
		return printError(stderr, errors.New("vault id required"))
	}
	id, err := strconv.ParseUint(strings.TrimSpace(rest[1]), 10, 64)
	if err != nil {
		return printError(stderr, fmt.Errorf("invalid vault id %q", rest[1]))
	}
	path := fmt.Sprintf("/v1/vaults/%d/eligibility", id)
	switch {
	case rest[0] == "get" && len(rest) == 2:
		return invoke(stdout, stderr, api, http.MethodGet, path, nil)
	case rest[0] == "set" && len(rest) == 3:
		enabled, err := parseBool(rest[2])
		if err != nil {
			return printError(stderr, err)
		}
		return invoke(stdout, stderr, api, http.MethodPut, path, map[string]bool{"enabled": enabled})
	default:
		return printError(stderr, fmt.Errorf("invalid vault invocation: %s", strings.Join(rest, " ")))
	}
}

func runParams(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("params", stderr)
	api := registerAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	switch {
	case len(rest) == 0, len(rest) == 1 && rest[0] == "get":
		return invoke(stdout, stderr, api, http.MethodGet, "/v1/params", nil)
	case len(rest) == 3 && rest[0] == "set":
		return invoke(stdout, stderr, api, http.MethodPut, "/v1/params/"+seg(rest[1]), map[string]string{"value": strings.TrimSpace(rest[2])})
	default:
		return printError(stderr, fmt.Errorf("invalid params invocation: %s", strings.Join(rest, " ")))
	}
}

func runRole(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("role", stderr)
	api := registerAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return printError(stderr, errors.New("usage: role <list|check|grant|revoke> <role> [principal]"))
	}
	rolePath := "/v1/roles/" + seg(rest[1])
	switch {
	case rest[0] == "list" && len(rest) == 2:
		return invoke(stdout, stderr, api, http.MethodGet, rolePath, nil)
	case rest[0] == "check" && len(rest) == 3:
		return invoke(stdout, stderr, api, http.MethodGet, rolePath+"/"+seg(rest[2]), nil)
	case rest[0] == "grant" && len(rest) == 3:
		return invoke(stdout, stderr, api, http.MethodPut, rolePath+"/"+seg(rest[2]), nil)
	case rest[0] == "revoke" && len(rest) == 3:
		return invoke(stdout, stderr, api, http.MethodDelete, rolePath+"/"+seg(rest[2]), nil)
	default:
		return printError(stderr, fmt.Errorf("invalid role invocation: %s", strings.Join(rest, " ")))
	}
}

func runPause(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pause", stderr)
	api := registerAPIFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	switch {
	case len(rest) == 2 && rest[0] == "get":
		return invoke(stdout, stderr, api, http.MethodGet, "/v1/pauses/"+seg(rest[1]), nil)
	case len(rest) == 3 && rest[0] == "set":
		paused, err := parseBool(rest[2])
		if err != nil {
			return printError(stderr, err)
		}
		return invoke(stdout, stderr, api, http.MethodPut, "/v1/pauses/"+seg(rest[1]), map[string]bool{"paused": paused})
	default:
		return printError(stderr, fmt.Errorf("invalid pause invocation: %s", strings.Join(rest, " ")))
	}
}

func runEvents(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("events", stderr)
	api := registerAPIFlags(fs)
	eventType := fs.String("type", "", "only return events of this type")
	limit := fs.Int("limit", 0, "maximum number of events to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	query := url.Values{}
	if strings.TrimSpace(*eventType) != "" {
		query.Set("type", strings.TrimSpace(*eventType))
	}
	if *limit > 0 {
		query.Set("limit", strconv.Itoa(*limit))
	}
	path := "/v1/events"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return invoke(stdout, stderr, api, http.MethodGet, path, nil)
}
