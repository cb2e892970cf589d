package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/allaspectsdev/routeman/internal/admin"
	"github.com/allaspectsdev/routeman/internal/config"
)

func cmdAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}
	if args[0] == "help" || args[0] == "--help" || args[0] == "-h" {
		printAdminUsage()
		return
	}

	req, err := buildAdminRequest(args[0], args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	client := admin.NewClient(cfg.AdminSocketPath(), 0)
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if resp.Status != "ok" {
		fmt.Fprintf(os.Stderr, "error (%s): %s\n", resp.Code, resp.Error)
		os.Exit(1)
	}

	printAdminResponse(req, resp)
}

// buildAdminRequest maps CLI positional arguments onto the command catalog.
// Argument-count errors are caught here so the daemon only ever sees
// well-formed requests from this client.
func buildAdminRequest(command string, args []string) (*admin.Request, error) {
	req := &admin.Request{Command: admin.CommandName(command)}

	need := func(n int, usage string) error {
		if len(args) != n {
			return fmt.Errorf("usage: routeman admin %s %s", command, usage)
		}
		return nil
	}

	switch req.Command {
	case admin.CmdAddAdminAuth:
		if err := need(2, "<name> <credentials>"); err != nil {
			return nil, err
		}
		req.Name, req.Credentials = args[0], args[1]

	case admin.CmdRemoveAdminAuth, admin.CmdGetAdminAuth:
		if err := need(1, "<name>"); err != nil {
			return nil, err
		}
		req.Name = args[0]

	case admin.CmdListAdminAuth, admin.CmdListUserAPIKeys, admin.CmdListBackends, admin.CmdListModelMappings:
		if err := need(0, ""); err != nil {
			return nil, err
		}

	case admin.CmdAddUserAPIKey:
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("usage: routeman admin %s <api_key> [description]", command)
		}
		req.APIKey = args[0]
		if len(args) == 2 {
			req.Description = args[1]
		}

	case admin.CmdRemoveUserAPIKey:
		if err := need(1, "<api_key>"); err != nil {
			return nil, err
		}
		req.APIKey = args[0]

	case admin.CmdGetUserAPIKey, admin.CmdActivateUserAPIKey, admin.CmdDeactivateUserAPIKey:
		if err := need(1, "<id>"); err != nil {
			return nil, err
		}
		id, convErr := strconv.ParseInt(args[0], 10, 64)
		if convErr != nil {
			return nil, fmt.Errorf("id must be an integer, got %q", args[0])
		}
		req.ID = id

	case admin.CmdAddBackend, admin.CmdRemoveBackend:
		if err := need(2, "<provider> <url>"); err != nil {
			return nil, err
		}
		req.Provider, req.URL = args[0], args[1]

	case admin.CmdGetBackend:
		if err := need(1, "<provider>"); err != nil {
			return nil, err
		}
		req.Provider = args[0]

	case admin.CmdAddModelMapping:
		if err := need(2, "<model_name> <provider>"); err != nil {
			return nil, err
		}
		req.ModelName, req.Provider = args[0], args[1]

	case admin.CmdRemoveModelMapping, admin.CmdGetModelMapping:
		if err := need(1, "<model_name>"); err != nil {
			return nil, err
		}
		req.ModelName = args[0]

	default:
		return nil, fmt.Errorf("unknown admin command: %s (routeman admin help)", command)
	}

	return req, nil
}

func printAdminResponse(req *admin.Request, resp *admin.Response) {
	switch req.Command {
	case admin.CmdAddUserAPIKey:
		fmt.Printf("ok: key added with id %d\n", resp.ID)

	case admin.CmdListAdminAuth:
		if len(resp.AuthNames) == 0 {
			fmt.Println("No admin credentials stored")
			return
		}
		for _, name := range resp.AuthNames {
			fmt.Printf("  %s\n", name)
		}

	case admin.CmdGetAdminAuth:
		fmt.Printf("  %s: %s\n", resp.Name, resp.Credentials)

	case admin.CmdListUserAPIKeys:
		if len(resp.Keys) == 0 {
			fmt.Println("No user API keys stored")
			return
		}
		for _, k := range resp.Keys {
			fmt.Printf("  %s\n", formatKeyInfo(k))
		}

	case admin.CmdGetUserAPIKey:
		if resp.Key != nil {
			fmt.Printf("  %s\n", formatKeyInfo(*resp.Key))
		}

	case admin.CmdListBackends:
		if len(resp.Backends) == 0 {
			fmt.Println("No backends configured")
			return
		}
		providers := make([]string, 0, len(resp.Backends))
		for p := range resp.Backends {
			providers = append(providers, p)
		}
		sort.Strings(providers)
		for _, p := range providers {
			fmt.Printf("  %s:\n", p)
			for i, u := range resp.Backends[p] {
				fmt.Printf("    %d. %s\n", i+1, u)
			}
		}

	case admin.CmdGetBackend:
		fmt.Printf("  %s:\n", resp.Provider)
		for i, u := range resp.URLs {
			fmt.Printf("    %d. %s\n", i+1, u)
		}

	case admin.CmdListModelMappings:
		if len(resp.Mappings) == 0 {
			fmt.Println("No model mappings configured")
			return
		}
		models := make([]string, 0, len(resp.Mappings))
		for m := range resp.Mappings {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Printf("  %s -> %s\n", m, resp.Mappings[m])
		}

	case admin.CmdGetModelMapping:
		fmt.Printf("  %s -> %s\n", resp.ModelName, resp.Provider)

	default:
		fmt.Println("ok")
	}
}

func formatKeyInfo(k admin.KeyInfo) string {
	state := "active"
	if !k.Active {
		state = "inactive"
	}
	desc := ""
	if k.Description != "" {
		desc = "  " + k.Description
	}
	return fmt.Sprintf("[%d] %s (%s)%s", k.ID, k.APIKey, state, desc)
}

func printAdminUsage() {
	fmt.Println(`Usage: routeman admin <command> [args...]

Admin credentials:
  add_admin_auth <name> <credentials>
  remove_admin_auth <name>
  list_admin_auth
  get_admin_auth <name>

User API keys:
  add_user_api_key <api_key> [description]
  remove_user_api_key <api_key>
  list_user_api_keys
  get_user_api_key <id>
  activate_user_api_key <id>
  deactivate_user_api_key <id>

Backends:
  add_backend <provider> <url>
  remove_backend <provider> <url>
  list_backends
  get_backend <provider>

Model mappings:
  add_model_mapping <model_name> <provider>
  remove_model_mapping <model_name>
  list_model_mappings
  get_model_mapping <model_name>

Credential values may be a literal secret or an indirect reference
(keyring://routeman/<provider>, env:VAR, file:///path). The daemon must be
running; commands go over the admin socket in the data directory.`)
}
