package main

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"fcmeditor.com/client/modelsync"
)

const ModelCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Model control.

Settings are read from the config file, then overridden by flags.
The default urls are:
    api_url: http://localhost:8000
    ws_url: ws://localhost:8000

Usage:
    modelctl model [options] <project_id>
    modelctl watch [options] <project_id>
    modelctl move [options] <project_id> <concept_id> <x> <y>
    modelctl set-control [options] <project_id> <concept_id> (--on | --off)
    modelctl plugins [options] [<project_id>] [--set=<names>]
    modelctl projects [options] [--search=<search>] [--page=<page>]
    modelctl runs [options] <project_id> [--watch]
    modelctl whoami [options]

Options:
    -h --help              Show this screen.
    --version              Show version.
    --config=<config>      YAML config file.
    --api_url=<api_url>
    --ws_url=<ws_url>
    --locale=<locale>      Locale for labels and server messages.
    --jwt=<jwt>            Your session JWT. Prompted for when missing on a terminal.
    --set=<names>          Comma separated plugin names to install.
    --search=<search>
    --page=<page>          [default: 1]
    --watch                Keep following the live channel.
    --on
    --off`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ModelCtlVersion)
	if err != nil {
		panic(err)
	}

	config, err := loadConfig(opts)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if model_, _ := opts.Bool("model"); model_ {
		err = model(ctx, config, opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		err = watch(ctx, config, opts)
	} else if move_, _ := opts.Bool("move"); move_ {
		err = move(ctx, config, opts)
	} else if setControl_, _ := opts.Bool("set-control"); setControl_ {
		err = setControl(ctx, config, opts)
	} else if plugins_, _ := opts.Bool("plugins"); plugins_ {
		err = plugins(ctx, config, opts)
	} else if projects_, _ := opts.Bool("projects"); projects_ {
		err = projects(ctx, config, opts)
	} else if runs_, _ := opts.Bool("runs"); runs_ {
		err = runs(ctx, config, opts)
	} else if whoami_, _ := opts.Bool("whoami"); whoami_ {
		err = whoami(config)
	}
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts docopt.Opts) (*modelsync.Config, error) {
	config := modelsync.DefaultConfig()
	if path, err := opts.String("--config"); err == nil && path != "" {
		config, err = modelsync.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if apiUrl, err := opts.String("--api_url"); err == nil && apiUrl != "" {
		config.ApiUrl = apiUrl
	}
	if wsUrl, err := opts.String("--ws_url"); err == nil && wsUrl != "" {
		config.WsUrl = wsUrl
	}
	if locale, err := opts.String("--locale"); err == nil && locale != "" {
		config.Locale = locale
	}
	if jwt, err := opts.String("--jwt"); err == nil && jwt != "" {
		config.Jwt = jwt
	}
	if config.Jwt == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "jwt: ")
		jwt, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, err
		}
		config.Jwt = strings.TrimSpace(string(jwt))
	}
	return config, nil
}

func openSession(ctx context.Context, config *modelsync.Config, opts docopt.Opts, live bool) (*modelsync.ModelSession, *modelsync.MessageBus, error) {
	projectId, err := opts.Int("<project_id>")
	if err != nil {
		return nil, nil, fmt.Errorf("invalid project_id (%s)", err)
	}
	wsUrl := ""
	if live {
		wsUrl = config.WsUrl
	}
	bus := modelsync.NewMessageBus()
	session, err := modelsync.OpenModelSession(
		ctx,
		config.ApiUrl,
		wsUrl,
		config.ClientContext(),
		int64(projectId),
		modelsync.NewMemoryGraph(),
		bus,
		config.SessionSettings(),
	)
	if err != nil {
		return nil, nil, err
	}
	return session, bus, nil
}

// the message of a failed result
func failed(result interface{ Message() string }) error {
	return fmt.Errorf("failed: %s", result.Message())
}

func model(ctx context.Context, config *modelsync.Config, opts docopt.Opts) error {
	session, _, err := openSession(ctx, config, opts, false)
	if err != nil {
		return err
	}
	defer session.Close()

	m, err := session.Model()
	if err != nil {
		return err
	}
	printModel(m, session.Dispatcher().Graph().(*modelsync.MemoryGraph), newClassStyles(session.Dispatcher().Styles()))
	return nil
}

func printModel(m *modelsync.Model, graph *modelsync.MemoryGraph, styles *classStyles) {
	Out.Printf("%s (%d) updated %s\n", m.Project.Name, m.Project.Id, m.Project.UpdatedAt.Format(time.RFC3339))
	Out.Printf("plugins: %s\n", strings.Join(m.Project.Plugins, ", "))
	concepts := slices.Clone(m.Concepts)
	slices.SortFunc(concepts, func(a *modelsync.Concept, b *modelsync.Concept) int {
		return cmp.Compare(a.Id, b.Id)
	})
	for _, concept := range concepts {
		Out.Println(styles.render(graph.Element(modelsync.ConceptElementId(concept.Id))))
	}
	connections := slices.Clone(m.Connections)
	slices.SortFunc(connections, func(a *modelsync.Connection, b *modelsync.Connection) int {
		return cmp.Compare(a.Id, b.Id)
	})
	for _, connection := range connections {
		Out.Println(styles.render(graph.Element(modelsync.ConnectionElementId(connection.Id))))
	}
}

// terminal colors for graph classes, taken from the plugin style rules
type classStyles struct {
	styles map[string]lipgloss.Style
}

func newClassStyles(rules []*modelsync.StyleRule) *classStyles {
	styles := map[string]lipgloss.Style{}
	for _, rule := range rules {
		i := strings.LastIndex(rule.Selector, ".")
		if i < 0 {
			continue
		}
		class := rule.Selector[i+1:]
		for _, property := range []string{"background-color", "line-color"} {
			if color, ok := rule.Style[property]; ok {
				styles[class] = lipgloss.NewStyle().Foreground(lipgloss.Color(color))
				break
			}
		}
	}
	return &classStyles{
		styles: styles,
	}
}

func (self *classStyles) render(element *modelsync.MemoryElement) string {
	if element == nil {
		return ""
	}
	label := strings.Join(strings.Fields(element.Label()), " ")
	var line string
	if element.IsNode {
		line = fmt.Sprintf("%s [%s] @(%.1f, %.1f)", element.Id, label, element.Position.X, element.Position.Y)
	} else {
		line = fmt.Sprintf("%s %s -> %s [%s]", element.Id, element.Edge.Source, element.Edge.Target, label)
	}
	if 0 < len(element.Classes) {
		line = fmt.Sprintf("%s {%s}", line, strings.Join(element.Classes, " "))
	}
	for _, class := range element.Classes {
		if style, ok := self.styles[class]; ok {
			return style.Render(line)
		}
	}
	return line
}

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF5350"))

func watch(ctx context.Context, config *modelsync.Config, opts docopt.Opts) error {
	session, bus, err := openSession(ctx, config, opts, true)
	if err != nil {
		return err
	}
	defer session.Close()

	dispatcher := session.Dispatcher()
	graph := dispatcher.Graph().(*modelsync.MemoryGraph)

	m, _ := session.Model()
	printModel(m, graph, newClassStyles(dispatcher.Styles()))

	dispatcher.AddModelEventCallback(func(event modelsync.ModelEvent) {
		styles := newClassStyles(dispatcher.Styles())
		if event.Name == modelsync.ReloadEventName {
			m, _ := session.Model()
			printModel(m, graph, styles)
			return
		}
		element := graph.Element(event.Kind.ElementId(event.EntityId))
		if element == nil {
			Out.Printf("%s %s%d removed\n", event.Name, event.Kind, event.EntityId)
		} else {
			Out.Printf("%s %s\n", event.Name, styles.render(element))
		}
	})

	subscription := bus.SubscribeGlobal()
	defer subscription.Close()
	subscription.AddMessageCallback(func(message *modelsync.Message) {
		if message.Type == modelsync.MessageTypeError {
			Out.Println(errorStyle.Render(fmt.Sprintf("%s: %s", message.Key, message.Message)))
		}
	})

	if channel := session.Channel(); channel != nil {
		channel.AddConnectCallback(func(connected bool) {
			if connected {
				Err.Printf("connected %s\n", channel.Url())
			} else {
				Err.Printf("disconnected %s\n", channel.Url())
			}
		})
	}

	select {
	case <-ctx.Done():
	case <-session.Done():
	}
	return nil
}

func move(ctx context.Context, config *modelsync.Config, opts docopt.Opts) error {
	session, _, err := openSession(ctx, config, opts, false)
	if err != nil {
		return err
	}
	defer session.Close()

	conceptId, err := opts.Int("<concept_id>")
	if err != nil {
		return fmt.Errorf("invalid concept_id (%s)", err)
	}
	x, err := opts.Float64("<x>")
	if err != nil {
		return fmt.Errorf("invalid x (%s)", err)
	}
	y, err := opts.Float64("<y>")
	if err != nil {
		return fmt.Errorf("invalid y (%s)", err)
	}

	if err := session.MoveConcept(int64(conceptId), x, y); err != nil {
		return err
	}
	session.FlushMoves()

	m, err := session.Model()
	if err != nil {
		return err
	}
	concept := m.FindConcept(int64(conceptId))
	Out.Printf("%s @(%.1f, %.1f)\n", concept.Name, concept.XPosition, concept.YPosition)
	return nil
}

func setControl(ctx context.Context, config *modelsync.Config, opts docopt.Opts) error {
	session, _, err := openSession(ctx, config, opts, false)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.RequirePlugin(modelsync.ControlConceptsPluginName); err != nil {
		return err
	}
	conceptId, err := opts.Int("<concept_id>")
	if err != nil {
		return fmt.Errorf("invalid concept_id (%s)", err)
	}
	isControl, _ := opts.Bool("--on")

	result, err := session.ControlConcepts().SetIsControl().Execute(ctx, &modelsync.SetIsControlConceptArgs{
		ConceptId: int64(conceptId),
		IsControl: isControl,
	})
	if err != nil {
		return err
	}
	if !result.Success {
		return failed(result.ErrorData)
	}

	graph := session.Dispatcher().Graph().(*modelsync.MemoryGraph)
	styles := newClassStyles(session.Dispatcher().Styles())
	Out.Println(styles.render(graph.Element(modelsync.ConceptElementId(int64(conceptId)))))
	return nil
}

func plugins(ctx context.Context, config *modelsync.Config, opts docopt.Opts) error {
	api := modelsync.NewModelApiWithDefaults(ctx, config.ApiUrl, config.ClientContext())
	defer api.Close()
	bus := modelsync.NewMessageBus()

	names, _ := opts.String("--set")
	if names == "" {
		getPlugins := modelsync.NewGetPluginsCommand(api, bus, modelsync.CommandOptions{Key: modelsync.GetPluginsKey})
		result, err := getPlugins.Execute(ctx, struct{}{})
		if err != nil {
			return err
		}
		if !result.Success {
			return failed(result.ErrorData)
		}
		for _, plugin := range result.Data {
			line := plugin.Name
			if 0 < len(plugin.Dependencies) {
				line = fmt.Sprintf("%s (requires %s)", line, strings.Join(plugin.Dependencies, ", "))
			}
			Out.Printf("%s\n    %s\n", line, plugin.Description)
		}
		return nil
	}

	session, _, err := openSession(ctx, config, opts, false)
	if err != nil {
		return err
	}
	defer session.Close()

	pluginNames := []string{}
	for _, name := range strings.Split(names, ",") {
		if name = strings.TrimSpace(name); name != "" {
			pluginNames = append(pluginNames, name)
		}
	}
	result, err := session.SetPlugins(ctx, pluginNames)
	if err != nil {
		return err
	}
	if !result.Success {
		return failed(result.ErrorData)
	}
	Out.Printf("installed: %s\n", strings.Join(result.Data, ", "))
	return nil
}

func projects(ctx context.Context, config *modelsync.Config, opts docopt.Opts) error {
	api := modelsync.NewModelApiWithDefaults(ctx, config.ApiUrl, config.ClientContext())
	defer api.Close()
	bus := modelsync.NewMessageBus()

	filter := &modelsync.ProjectsFilter{
		Group: modelsync.ProjectGroupBoth,
	}
	filter.Search, _ = opts.String("--search")
	if page, err := opts.Int("--page"); err == nil {
		filter.Page = page
	}

	getProjects := modelsync.NewGetProjectsCommand(api, bus, modelsync.CommandOptions{Key: modelsync.GetProjectsKey})
	result, err := getProjects.Execute(ctx, filter)
	if err != nil {
		return err
	}
	if !result.Success {
		return failed(result.ErrorData)
	}
	for _, project := range result.Data.Data {
		Out.Printf("%d %s (%s)\n", project.Id, project.Name, project.UpdatedAt.Format(time.RFC3339))
	}
	Out.Printf("page %d of %d, %d projects\n", filter.Page, result.Data.TotalPages, result.Data.TotalCount)
	return nil
}

func runs(ctx context.Context, config *modelsync.Config, opts docopt.Opts) error {
	projectId, err := opts.Int("<project_id>")
	if err != nil {
		return fmt.Errorf("invalid project_id (%s)", err)
	}
	live, _ := opts.Bool("--watch")
	wsUrl := ""
	if live {
		wsUrl = config.WsUrl
	}

	bus := modelsync.NewMessageBus()
	session, err := modelsync.OpenAdjustmentRunsSession(
		ctx,
		config.ApiUrl,
		wsUrl,
		config.ClientContext(),
		int64(projectId),
		bus,
		config.AdjustmentRunsSettings(),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	printRuns := func() {
		page := session.Page()
		if page == nil {
			return
		}
		for _, run := range page.Data {
			if run.Finished() {
				Out.Printf("%d %s fitness=%.4f generation=%d\n", run.Id, run.Name, run.ResultChromosome.Fitness, run.ResultChromosome.GenerationNumber)
			} else {
				Out.Printf("%d %s running\n", run.Id, run.Name)
			}
		}
		Out.Printf("%d runs\n", page.TotalCount)
	}
	printRuns()

	if !live {
		return nil
	}

	session.AddGenerationCallback(func(adjustmentRunId int64, generation *modelsync.AdjustmentGeneration) {
		Out.Printf("run %d generation %d fitness=%.4f\n", adjustmentRunId, generation.Number, generation.Fitness)
	})
	subscription := bus.SubscribeGlobal()
	defer subscription.Close()
	subscription.AddMessageCallback(func(message *modelsync.Message) {
		if message.Type == modelsync.MessageTypeError {
			Out.Println(errorStyle.Render(fmt.Sprintf("%s: %s", message.Key, message.Message)))
		}
	})

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return nil
		case <-ticker.C:
			printRuns()
		}
	}
}

func whoami(config *modelsync.Config) error {
	if config.Jwt == "" {
		return fmt.Errorf("no jwt")
	}
	sessionJwt, err := modelsync.ParseSessionJwtUnverified(config.Jwt)
	if err != nil {
		return err
	}
	Out.Printf("user_id: %d\n", sessionJwt.UserId)
	Out.Printf("username: %s\n", sessionJwt.Username)
	if sessionJwt.Locale != "" {
		Out.Printf("locale: %s\n", sessionJwt.Locale)
	}
	if !sessionJwt.ExpiresAt.IsZero() {
		state := "valid"
		if sessionJwt.Expired(time.Now()) {
			state = "expired"
		}
		Out.Printf("expires: %s (%s)\n", sessionJwt.ExpiresAt.Format(time.RFC3339), state)
	}
	return nil
}
