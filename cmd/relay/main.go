package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bytedance/sonic"

	"github.com/ambiyansyah-risyal/relay"
	"github.com/ambiyansyah-risyal/relay/schema"
)

type CLI struct {
	Version VersionCmd `cmd:"" help:"Print version information."`
	Methods MethodsCmd `cmd:"" help:"List the methods a schema document defines."`
	Call    CallCmd    `cmd:"" help:"Invoke one method of a schema document and print the result."`
}

type VersionCmd struct {
	JSON bool `help:"Print version metadata as JSON."`
}

func (c *VersionCmd) Run() error {
	if !c.JSON {
		fmt.Println(relay.GetVersion())
		return nil
	}
	return printJSON(relay.GetVersionInfo())
}

type MethodsCmd struct {
	Schema string `arg:"" help:"Schema document (.yaml, .toml or .json)." type:"existingfile"`
}

func (c *MethodsCmd) Run() error {
	doc, err := schema.Load(c.Schema)
	if err != nil {
		return err
	}
	client, err := doc.Build(nil, relay.Config{}, relay.WithTransport(noTransport))
	if err != nil {
		return err
	}

	for _, name := range client.Methods() {
		m, _ := client.Lookup(name)
		d := m.Descriptor()
		fmt.Printf("%-24s %-7s %s\n", name, d.HTTPMethod, d.Path)
	}
	return nil
}

type CallCmd struct {
	Schema  string            `arg:"" help:"Schema document (.yaml, .toml or .json)." type:"existingfile"`
	Name    string            `arg:"" help:"Flattened method name, e.g. comments_get."`
	Param   map[string]string `short:"p" help:"Call parameter as key=value. Repeatable."`
	Data    string            `short:"d" help:"JSON object merged into the parameters."`
	Header  map[string]string `short:"H" help:"Request header as key=value. Repeatable."`
	APIURL  string            `name:"api-url" help:"Override the document's apiUrl."`
	Timeout time.Duration     `help:"Per-call timeout (defaults to RELAY_TIMEOUT)."`
	Debug   bool              `help:"Log lifecycle events."`
}

func (c *CallCmd) Run() error {
	doc, err := schema.Load(c.Schema)
	if err != nil {
		return err
	}

	env, err := relay.LoadConfig()
	if err != nil {
		return err
	}
	if c.APIURL != "" {
		env.APIURL = c.APIURL
	}
	if c.Debug {
		env.Debug = true
		env.LogLevel = "debug"
		env.LogDevelopment = true
	}
	opts, err := env.Options()
	if err != nil {
		return err
	}
	if c.Timeout > 0 {
		opts = append(opts, relay.WithTimeout(c.Timeout))
	}
	for key, value := range c.Header {
		opts = append(opts, relay.WithHeader(key, value))
	}

	client, err := doc.Build(nil, env.ClientConfig(), opts...)
	if err != nil {
		return err
	}
	m, ok := client.Lookup(c.Name)
	if !ok {
		return fmt.Errorf("unknown method %q (have: %s)", c.Name, strings.Join(client.Methods(), ", "))
	}

	params, err := c.params()
	if err != nil {
		return err
	}
	body, err := m.Do(context.Background(), params)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func (c *CallCmd) params() (relay.Params, error) {
	params := relay.Params{}
	if c.Data != "" {
		if err := sonic.UnmarshalString(c.Data, &params); err != nil {
			return nil, fmt.Errorf("invalid --data: %w", err)
		}
	}
	for key, value := range c.Param {
		params[key] = value
	}
	return params, nil
}

// noTransport backs clients that are only inspected, never called.
var noTransport = relay.TransportFunc(func(context.Context, *relay.Request) (*relay.Response, error) {
	return nil, fmt.Errorf("relay: inspection client cannot send requests")
})

func printJSON(v any) error {
	if s, ok := v.(string); ok {
		fmt.Println(s)
		return nil
	}
	out, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("relay"),
		kong.Description("Inspect and call HTTP APIs described by relay schema documents."),
		kong.UsageOnError(),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
