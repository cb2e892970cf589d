// Package admin implements the control channel: a Unix-socket JSON
// protocol through which an operator mutates and inspects the registry.
// Every mutation is committed to the store and published to the registry
// cache before the command's response is written, so an operator who adds
// a mapping can dispatch against it the moment the command returns.
package admin

import "fmt"

// CommandName identifies one command in the closed catalog. Dispatch is an
// exhaustive switch over these constants, so an unhandled command is a
// compile-time smell rather than a runtime surprise.
type CommandName string

const (
	CmdAddAdminAuth    CommandName = "add_admin_auth"
	CmdRemoveAdminAuth CommandName = "remove_admin_auth"
	CmdListAdminAuth   CommandName = "list_admin_auth"
	CmdGetAdminAuth    CommandName = "get_admin_auth"

	CmdAddUserAPIKey        CommandName = "add_user_api_key"
	CmdRemoveUserAPIKey     CommandName = "remove_user_api_key"
	CmdListUserAPIKeys      CommandName = "list_user_api_keys"
	CmdGetUserAPIKey        CommandName = "get_user_api_key"
	CmdActivateUserAPIKey   CommandName = "activate_user_api_key"
	CmdDeactivateUserAPIKey CommandName = "deactivate_user_api_key"

	CmdAddBackend    CommandName = "add_backend"
	CmdRemoveBackend CommandName = "remove_backend"
	CmdListBackends  CommandName = "list_backends"
	CmdGetBackend    CommandName = "get_backend"

	CmdAddModelMapping    CommandName = "add_model_mapping"
	CmdRemoveModelMapping CommandName = "remove_model_mapping"
	CmdListModelMappings  CommandName = "list_model_mappings"
	CmdGetModelMapping    CommandName = "get_model_mapping"
)

// Request is one admin command: the command name plus whichever fields that
// command reads. Unused fields are simply absent on the wire.
type Request struct {
	Command CommandName `json:"command"`

	// Admin credential fields.
	Name        string `json:"name,omitempty"`
	Credentials string `json:"credentials,omitempty"`

	// User API key fields.
	APIKey      string `json:"api_key,omitempty"`
	Description string `json:"description,omitempty"`
	ID          int64  `json:"id,omitempty"`

	// Backend and mapping fields.
	Provider  string `json:"provider,omitempty"`
	URL       string `json:"url,omitempty"`
	ModelName string `json:"model_name,omitempty"`
}

// KeyInfo is a user API key as reported by list/get commands. The secret is
// redacted; keys are only ever shown in full to the operator who supplied
// them at creation.
type KeyInfo struct {
	ID          int64  `json:"id"`
	APIKey      string `json:"api_key"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
}

// Response is the envelope every command answers with: status "ok" with
// command-specific data fields, or status "error" with a stable code and a
// human-readable message.
type Response struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`

	// Data fields, populated per command.
	ID          int64               `json:"id,omitempty"`
	Name        string              `json:"name,omitempty"`
	Credentials string              `json:"credentials,omitempty"`
	AuthNames   []string            `json:"auth_names,omitempty"`
	Key         *KeyInfo            `json:"user_api_key,omitempty"`
	Keys        []KeyInfo           `json:"user_api_keys,omitempty"`
	Provider    string              `json:"provider,omitempty"`
	URLs        []string            `json:"urls,omitempty"`
	Backends    map[string][]string `json:"backends,omitempty"`
	ModelName   string              `json:"model_name,omitempty"`
	Mappings    map[string]string   `json:"mappings,omitempty"`
}

// Error codes used in Response.Code.
const (
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeStorageError = "storage_error"
)

// redactedSecret replaces stored secrets in list/get responses.
const redactedSecret = "****"

// ok returns a success envelope; callers fill in data fields.
func ok() *Response {
	return &Response{Status: "ok"}
}

// fail returns an error envelope with the given code and message.
func fail(code, format string, args ...interface{}) *Response {
	return &Response{Status: "error", Code: code, Error: fmt.Sprintf(format, args...)}
}
