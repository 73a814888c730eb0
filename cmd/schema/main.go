package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/Guillerming/calavera-arena-game-sub000/internal/net"
)

func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// buildSchema describes every frame on the wire, one alternative per
// message type and direction.
func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Calavera Arena Wire Protocol",
		Description: "JSON frames exchanged between game clients and the relay. Every frame carries a string \"type\" key.",
	}
	root.OneOf = append(root.OneOf, messageSchemas(&reflector, "client", net.ClientCatalog(), net.ClientRequired)...)
	root.OneOf = append(root.OneOf, messageSchemas(&reflector, "server", net.ServerCatalog(), net.ServerRequired)...)
	return root
}

func messageSchemas(reflector *jsonschema.Reflector, from string, catalog []net.Message, required func(string) []string) []*jsonschema.Schema {
	out := make([]*jsonschema.Schema, 0, len(catalog))
	for _, m := range catalog {
		s := reflector.ReflectFromType(reflect.TypeOf(m))
		s.Version = ""
		s.Title = from + "/" + m.MessageType()
		s.Description = fmt.Sprintf("Sent by the %s with \"type\": %q.", from, m.MessageType())
		s.Required = required(m.MessageType())
		out = append(out, s)
	}
	return out
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
