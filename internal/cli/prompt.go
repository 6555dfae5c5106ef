package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"loadtest-engine/internal/config"
)

// Options is everything the command line can ask for.
type Options struct {
	Config      config.TestConfig
	ConfigFiles []string
	Output      string
	Interactive bool
	Serve       bool
	Driver      string
	Synthetic   bool
	Influx      bool
	Verbose     bool
}

var bannerLines = []string{
	"██╗      ██████╗  █████╗ ██████╗ ",
	"██║     ██╔═══██╗██╔══██╗██╔══██╗",
	"██║     ██║   ██║███████║██║  ██║",
	"██║     ██║   ██║██╔══██║██║  ██║",
	"███████╗╚██████╔╝██║  ██║██████╔╝",
	"╚══════╝ ╚═════╝ ╚═╝  ╚═╝╚═════╝ ",
}

var gradientStops = [][3]float64{
	{79, 70, 229},   // indigo #4F46E5
	{129, 92, 246},  // violet #8B5CF6
	{168, 85, 247},  // purple #A855F7
	{217, 70, 239},  // fuchsia #D946EF
	{236, 72, 153},  // pink #EC4899
	{251, 113, 133}, // rose #FB7185
}

func lerpColor(c1, c2 [3]float64, t float64) [3]float64 {
	return [3]float64{
		c1[0] + (c2[0]-c1[0])*t,
		c1[1] + (c2[1]-c1[1])*t,
		c1[2] + (c2[2]-c1[2])*t,
	}
}

func getGradientColor(t float64) [3]float64 {
	if t <= 0 {
		return gradientStops[0]
	}
	if t >= 1 {
		return gradientStops[len(gradientStops)-1]
	}

	segments := float64(len(gradientStops) - 1)
	scaled := t * segments
	idx := min(int(scaled), len(gradientStops)-2)
	localT := scaled - float64(idx)

	return lerpColor(gradientStops[idx], gradientStops[idx+1], localT)
}

func PrintBanner() {
	fmt.Println()

	height := len(bannerLines)
	width := 0
	for _, line := range bannerLines {
		width = max(width, len([]rune(line)))
	}

	for y, line := range bannerLines {
		var result strings.Builder
		for x, r := range []rune(line) {
			diagonal := (float64(x)/float64(width))*0.5 + (float64(y)/float64(height))*0.5
			color := getGradientColor(diagonal)

			style := lipgloss.NewStyle().Foreground(lipgloss.Color(
				fmt.Sprintf("#%02X%02X%02X", int(color[0]), int(color[1]), int(color[2])),
			))
			result.WriteString(style.Render(string(r)))
		}
		fmt.Println(result.String())
	}
	fmt.Println()
}

// PromptConfig asks for a test config, starting from the given values.
func PromptConfig(initial config.TestConfig) (*config.TestConfig, error) {
	cfg := initial.Clone()
	if err := config.ApplyDefaults(&cfg); err != nil {
		cfg.Method = config.DefaultMethod
		cfg.VirtualUsers = config.DefaultVirtualUsers
		cfg.Duration = config.DefaultDuration
		cfg.RampUp = config.DefaultRampUp
	}

	method := string(cfg.Method)
	vus := strconv.Itoa(cfg.VirtualUsers)
	headers := joinPairs(cfg.Headers, ": ")
	params := joinPairs(cfg.Parameters, "=")

	methodOptions := []huh.Option[string]{
		huh.NewOption("GET", string(config.MethodGet)),
		huh.NewOption("POST", string(config.MethodPost)),
		huh.NewOption("PUT", string(config.MethodPut)),
		huh.NewOption("DELETE", string(config.MethodDelete)),
		huh.NewOption("PATCH", string(config.MethodPatch)),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target URL").
				Placeholder("https://api.example.com/users").
				Validate(required("url")).
				Value(&cfg.URL),
			huh.NewSelect[string]().
				Title("HTTP method").
				Options(methodOptions...).
				Value(&method),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Virtual users").
				Validate(positiveInt).
				Value(&vus),
			huh.NewInput().
				Title("Duration").
				Description("Hold time at full load, e.g. 30s, 2m, 1h").
				Validate(duration).
				Value(&cfg.Duration),
			huh.NewInput().
				Title("Ramp-up").
				Validate(duration).
				Value(&cfg.RampUp),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Headers").
				Description("One per line, Key: Value").
				Validate(lines(config.ParseHeader)).
				Value(&headers),
			huh.NewText().
				Title("Query parameters").
				Description("One per line, key=value").
				Validate(lines(config.ParseParam)).
				Value(&params),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Request body").
				Description("JSON is sent as JSON, anything else verbatim").
				Value(&cfg.Body),
		).WithHideFunc(func() bool { return method == string(config.MethodGet) }),
	).WithTheme(huh.ThemeCatppuccin()).WithKeyMap(huh.NewDefaultKeyMap())

	if err := form.Run(); err != nil {
		return nil, err
	}

	cfg.Method = config.Method(method)
	cfg.VirtualUsers, _ = strconv.Atoi(strings.TrimSpace(vus))
	cfg.Headers, _ = splitPairs(headers, config.ParseHeader)
	cfg.Parameters, _ = splitPairs(params, config.ParseParam)
	if cfg.Method == config.MethodGet {
		cfg.Body = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("must be a positive integer")
	}
	return nil
}

func duration(s string) error {
	if !config.ValidDuration(strings.TrimSpace(s)) {
		return errors.New("must look like 30s, 5m or 1h")
	}
	return nil
}

func lines(parse func(string) (config.KeyValue, error)) func(string) error {
	return func(s string) error {
		_, err := splitPairs(s, parse)
		return err
	}
}

func splitPairs(text string, parse func(string) (config.KeyValue, error)) ([]config.KeyValue, error) {
	var out []config.KeyValue
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kv, err := parse(line)
		if err != nil {
			return nil, err
		}
		out = append(out, kv)
	}
	return out, nil
}

func joinPairs(pairs []config.KeyValue, sep string) string {
	out := make([]string, len(pairs))
	for i, kv := range pairs {
		out[i] = kv.Key + sep + kv.Value
	}
	return strings.Join(out, "\n")
}

var ErrHelp = errors.New("help requested")

// ParseFlags reads command-line flags. It returns nil options when no arguments were given,
// which means interactive mode.
func ParseFlags(args []string) (*Options, error) {
	if len(args) == 0 {
		return nil, nil
	}

	opts := &Options{}
	var unknownFlags []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, inline, hasInline := strings.Cut(arg, "=")
		if !strings.HasPrefix(arg, "-") {
			opts.ConfigFiles = append(opts.ConfigFiles, arg)
			continue
		}

		value := func() (string, error) {
			if hasInline {
				return inline, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", name)
			}
			i++
			return args[i], nil
		}

		var err error
		switch name {
		case "-u", "--url":
			opts.Config.URL, err = value()
		case "-m", "--method":
			var v string
			v, err = value()
			opts.Config.Method = config.Method(strings.ToUpper(v))
		case "--vus":
			var v string
			if v, err = value(); err == nil {
				opts.Config.VirtualUsers, err = strconv.Atoi(v)
				if err != nil {
					err = fmt.Errorf("invalid --vus value %q", v)
				}
			}
		case "-d", "--duration":
			opts.Config.Duration, err = value()
		case "-r", "--ramp-up":
			opts.Config.RampUp, err = value()
		case "-H", "--header":
			var v string
			if v, err = value(); err == nil {
				var kv config.KeyValue
				if kv, err = config.ParseHeader(v); err == nil {
					opts.Config.Headers = append(opts.Config.Headers, kv)
				}
			}
		case "-p", "--param":
			var v string
			if v, err = value(); err == nil {
				var kv config.KeyValue
				if kv, err = config.ParseParam(v); err == nil {
					opts.Config.Parameters = append(opts.Config.Parameters, kv)
				}
			}
		case "-b", "--body":
			opts.Config.Body, err = value()
		case "-o", "--output":
			opts.Output, err = value()
		case "-i", "--interactive":
			opts.Interactive = true
		case "--serve":
			opts.Serve = true
		case "--driver":
			opts.Driver, err = value()
		case "--synthetic":
			opts.Synthetic = true
		case "--influx":
			opts.Influx = true
		case "-v", "--verbose":
			opts.Verbose = true
		case "-h", "--help":
			printHelp()
			return nil, ErrHelp
		default:
			unknownFlags = append(unknownFlags, arg)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(unknownFlags) > 0 {
		return nil, fmt.Errorf("unknown flags: %s", strings.Join(unknownFlags, ", "))
	}

	return opts, nil
}

func printHelp() {
	fmt.Println(`Usage: loadtest [options] [config.json|config.yaml ...]

Options:
  -u, --url URL          Target URL
  -m, --method METHOD    HTTP method (GET, POST, PUT, DELETE, PATCH)
      --vus N            Virtual users (default 100)
  -d, --duration D       Hold duration, e.g. 30s, 2m (default 30s)
  -r, --ramp-up D        Ramp-up duration (default 5s)
  -H, --header "K: V"    Request header, repeatable
  -p, --param k=v        Query parameter, repeatable
  -b, --body BODY        Request body, JSON or raw text
  -o, --output DIR       Write each report and a batch summary as JSON into DIR
  -i, --interactive      Fill in the test interactively
      --serve            Start the HTTP API instead of running a test
      --driver NAME      Load driver: k6 or synthetic (default k6)
      --synthetic        Same as --driver synthetic
      --influx           Export results to InfluxDB
  -v, --verbose          Debug logging
  -h, --help             Show this help message

Interactive mode:
  Run without arguments to be prompted for a test.

Examples:
  loadtest -u https://api.example.com/users --vus 50 -d 1m
  loadtest -u https://api.example.com/users -m POST -b '{"name":"a"}' -H "Authorization: Bearer x"
  loadtest tests.yaml -o report.json
  loadtest --serve`)
}

// PrintSummary shows the config about to run.
func PrintSummary(cfg *config.TestConfig) {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	line := func(label, value string) {
		fmt.Printf("%s %s\n", labelStyle.Render(label), valueStyle.Render(value))
	}

	fmt.Println(headerStyle.Render("Configuration"))
	fmt.Println(strings.Repeat("─", 40))

	line("Target:", string(cfg.Method)+" "+cfg.URL)
	line("Virtual users:", strconv.Itoa(cfg.VirtualUsers))
	line("Ramp-up:", cfg.RampUp)
	line("Duration:", cfg.Duration)
	for _, h := range cfg.Headers {
		line("Header:", h.Key+": "+h.Value)
	}
	for _, p := range cfg.Parameters {
		line("Param:", p.Key+"="+p.Value)
	}
	if cfg.Body != "" {
		fmt.Printf("%s %s\n", labelStyle.Render("Body:"), mutedStyle.Render(Truncate(cfg.Body, 60)))
	}

	fmt.Println(strings.Repeat("─", 40))
	fmt.Println()
}
