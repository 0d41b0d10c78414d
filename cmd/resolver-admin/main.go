/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/amtp-protocol/schemaresolver/internal/schema"
	"github.com/amtp-protocol/schemaresolver/internal/types"
)

const cliVersion = "1.0.0"

func main() {
	if err := run(os.Args, afero.NewOsFs()); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, fs afero.Fs) error {
	command := newAdminCommand(fs)
	parsedArgs := []string{}
	if len(args) > 1 {
		parsedArgs = args[1:]
	}
	command.SetArgs(parsedArgs)
	return command.Execute()
}

// admin holds the state shared by all subcommands
type admin struct {
	fs           afero.Fs
	serverURL    string
	apiKey       string
	adminKeyFile string
	timeout      time.Duration
	verbose      bool
	jsonOutput   bool
}

func newAdminCommand(fs afero.Fs) *cobra.Command {
	a := &admin{fs: fs}

	command := &cobra.Command{
		Use:          "resolver-admin",
		Short:        "Schema resolver admin CLI",
		Version:      cliVersion,
		SilenceUsage: true,
	}

	defaultURL := os.Getenv("RESOLVER_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	flags := command.PersistentFlags()
	flags.StringVar(&a.serverURL, "server-url", defaultURL, "schema resolver URL")
	flags.StringVar(&a.apiKey, "api-key", os.Getenv("RESOLVER_API_KEY"), "API key sent in the apikey header")
	flags.StringVar(&a.adminKeyFile, "admin-key-file", "", "admin API key file for publish and delete")
	flags.DurationVar(&a.timeout, "timeout", 30*time.Second, "request timeout")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&a.jsonOutput, "json", false, "output raw JSON for scripting")

	command.AddCommand(
		a.lookupCommand(),
		a.historyCommand(),
		a.validateCommand(),
		a.verifyCommand(),
		a.publishCommand(),
		a.deleteCommand(),
		a.listCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the CLI version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "resolver-admin %s\n", cliVersion)
				return nil
			},
		},
	)

	return command
}

// client builds an API client, loading the admin key when one is configured
func (a *admin) client(cmd *cobra.Command) (*apiClient, error) {
	c := newAPIClient(a.serverURL, a.timeout)
	c.apiKey = a.apiKey
	c.verbose = a.verbose
	c.log = cmd.ErrOrStderr()

	if a.adminKeyFile != "" {
		data, err := afero.ReadFile(a.fs, a.adminKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read admin key file: %w", err)
		}
		c.adminKey = firstKey(string(data))
		if c.adminKey == "" {
			return nil, fmt.Errorf("admin key file is empty")
		}
	}
	return c, nil
}

// firstKey returns the first non-comment line of a key file
func firstKey(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "#") {
			return line
		}
	}
	return ""
}

// parseKey accepts either iglu:vendor/name/format/M-R-A or the bare path
func parseKey(arg string) (schema.SchemaKey, error) {
	if strings.HasPrefix(arg, schema.URIPrefix) {
		return schema.ParseSchemaKey(arg)
	}
	return schema.ParseSchemaKeyPath(arg)
}

func (a *admin) readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func (a *admin) lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <iglu-uri>",
		Short: "Resolve a schema through the server's repositories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			body, err := c.do("GET", "/api/schemas/"+key.ToPath(), nil, false)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), body)
		},
	}
}

func (a *admin) historyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <iglu-uri>",
		Short: "Show failed lookups recorded for a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			body, err := c.do("GET", "/api/schemas/"+key.ToPath()+"/history", nil, false)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), body)
			}

			var resp types.LookupHistoryResponse
			if err := gojson.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to decode history: %w", err)
			}
			if len(resp.Repositories) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No failed lookups recorded for %s\n", resp.Schema)
				return nil
			}

			names := make([]string, 0, len(resp.Repositories))
			for name := range resp.Repositories {
				names = append(names, name)
			}
			sort.Strings(names)

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				h := resp.Repositories[name]
				kinds := make([]string, 0, len(h.Errors))
				for _, e := range h.Errors {
					kinds = append(kinds, e.Kind)
				}
				rows = append(rows, []string{
					name,
					strconv.Itoa(h.Attempts),
					h.LastAttempt.Format(time.RFC3339),
					strings.Join(kinds, ", "),
				})
			}
			renderTextTable(cmd.OutOrStdout(), []string{"REPOSITORY", "ATTEMPTS", "LAST ATTEMPT", "ERRORS"}, rows)
			return nil
		},
	}
}

func (a *admin) validateCommand() *cobra.Command {
	var file string
	var dataOnly bool
	command := &cobra.Command{
		Use:   "validate",
		Short: "Validate a self-describing JSON instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if dataOnly {
				query.Set("data_only", "true")
			}
			return a.runValidation(cmd, "/api/validate", query, file)
		},
	}
	command.Flags().StringVarP(&file, "file", "f", "", "instance JSON file")
	command.Flags().BoolVar(&dataOnly, "data-only", false, "return only the instance data")
	return command
}

func (a *admin) verifyCommand() *cobra.Command {
	var file, criterion string
	var dataOnly bool
	command := &cobra.Command{
		Use:   "verify",
		Short: "Validate an instance whose schema must match a criterion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := schema.ParseSchemaCriterion(criterion); err != nil {
				return fmt.Errorf("invalid --criterion: %w", err)
			}
			query := url.Values{}
			query.Set("criterion", criterion)
			if dataOnly {
				query.Set("data_only", "true")
			}
			return a.runValidation(cmd, "/api/verify", query, file)
		},
	}
	command.Flags().StringVarP(&file, "file", "f", "", "instance JSON file")
	command.Flags().StringVar(&criterion, "criterion", "", "criterion such as iglu:com.acme/event/jsonschema/1-*-*")
	command.Flags().BoolVar(&dataOnly, "data-only", false, "return only the instance data")
	return command
}

func (a *admin) runValidation(cmd *cobra.Command, endpoint string, query url.Values, file string) error {
	instance, err := a.readInput(file)
	if err != nil {
		return err
	}
	c, err := a.client(cmd)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	body, err := c.do("POST", endpoint, instance, false)
	if err != nil {
		printViolations(cmd.ErrOrStderr(), err)
		return err
	}
	if a.jsonOutput {
		return writeJSON(cmd.OutOrStdout(), body)
	}

	var resp types.ValidationResponse
	if err := gojson.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode validation response: %w", err)
	}
	if resp.Bypassed {
		fmt.Fprintf(cmd.OutOrStdout(), "BYPASSED %s: %s\n", resp.Schema, resp.BypassReason)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "VALID %s (%dms)\n", resp.Schema, resp.ProcessingTime)
	return nil
}

// printViolations renders the violations carried by a validation failure
func printViolations(w io.Writer, err error) {
	apiErr, ok := err.(*apiError)
	if !ok || apiErr.Details == nil {
		return
	}
	raw, ok := apiErr.Details["violations"].([]interface{})
	if !ok || len(raw) == 0 {
		return
	}

	rows := make([][]string, 0, len(raw))
	for _, item := range raw {
		v, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		location, _ := v["instance_location"].(string)
		message, _ := v["message"].(string)
		if location == "" {
			location = "/"
		}
		rows = append(rows, []string{location, message})
	}
	renderTextTable(w, []string{"LOCATION", "VIOLATION"}, rows)
}

func (a *admin) publishCommand() *cobra.Command {
	var file string
	command := &cobra.Command{
		Use:   "publish <iglu-uri>",
		Short: "Publish a schema into the server's storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			body, err := a.readInput(file)
			if err != nil {
				return err
			}
			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			resp, err := c.do("PUT", "/api/schemas/"+key.ToPath(), body, true)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", key.ToURI())
			return nil
		},
	}
	command.Flags().StringVarP(&file, "file", "f", "", "schema JSON file")
	return command
}

func (a *admin) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <iglu-uri>",
		Short: "Delete a schema from the server's storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			if _, err := c.do("DELETE", "/api/schemas/"+key.ToPath(), nil, true); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", key.ToURI())
			return nil
		},
	}
}

func (a *admin) listCommand() *cobra.Command {
	var vendor string
	command := &cobra.Command{
		Use:   "list",
		Short: "List published schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(cmd)
			if err != nil {
				return err
			}
			endpoint := "/api/schemas"
			if vendor != "" {
				endpoint += "?vendor=" + url.QueryEscape(vendor)
			}
			body, err := c.do("GET", endpoint, nil, false)
			if err != nil {
				return err
			}
			if a.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), body)
			}

			var resp types.SchemaListResponse
			if err := gojson.Unmarshal(body, &resp); err != nil {
				return fmt.Errorf("failed to decode schema list: %w", err)
			}
			rows := make([][]string, 0, len(resp.Schemas))
			for _, s := range resp.Schemas {
				checksum := s.Checksum
				if len(checksum) > 12 {
					checksum = checksum[:12]
				}
				rows = append(rows, []string{s.URI, checksum, s.CreatedAt.Format(time.RFC3339)})
			}
			renderTextTable(cmd.OutOrStdout(), []string{"SCHEMA", "CHECKSUM", "CREATED"}, rows)
			fmt.Fprintf(cmd.OutOrStdout(), "%d schema(s)\n", resp.Count)
			return nil
		},
	}
	command.Flags().StringVar(&vendor, "vendor", "", "only list schemas of this vendor")
	return command
}

func renderTextTable(w io.Writer, headers []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := make(table.Row, len(headers))
	for i, value := range headers {
		header[i] = value
	}
	t.AppendHeader(header)
	for _, rowValues := range rows {
		row := make(table.Row, len(rowValues))
		for i, value := range rowValues {
			row[i] = value
		}
		t.AppendRow(row)
	}
	t.Render()
}

// writeJSON pretty-prints a JSON document
func writeJSON(w io.Writer, data []byte) error {
	var out bytes.Buffer
	if err := gojson.Indent(&out, data, "", "  "); err != nil {
		_, err = w.Write(data)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
