package main

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/browser"
	"github.com/MarkoPoloResearchLab/storefront_e2e/internal/config"
)

const (
	commandName            = "configaudit"
	defaultConfigPath      = "config/storefront.yml"
	flagNameEnvFile        = "env-file"
	flagUsageEnvFile       = "dotenv file consulted for ${VAR} placeholders (repeatable)"
	keySeparator           = "."
	environmentKeyReplacer = "_"
	httpsScheme            = "https"
)

var (
	placeholderPattern   = regexp.MustCompile(`\$\{([A-Z0-9_]+)\}`)
	localURLPattern      = regexp.MustCompile(`^https?://(?:localhost|127\.0\.0\.1)(?::[0-9]{2,5})?(?:/|$)`)
	durationKeys         = []string{config.KeyBrowserCommandTimeout, config.KeyBrowserVariantTimeout}
	defaultEnvironmentFn = os.LookupEnv
)

type stringList []string

func (list *stringList) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*list = nil
		return nil
	}
	switch node.Kind {
	case yaml.ScalarNode:
		value := strings.TrimSpace(node.Value)
		if value == "" {
			*list = nil
			return nil
		}
		*list = []string{value}
		return nil
	case yaml.SequenceNode:
		entries := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if child == nil {
				continue
			}
			value := strings.TrimSpace(child.Value)
			if value == "" {
				continue
			}
			entries = append(entries, value)
		}
		*list = entries
		return nil
	default:
		return fmt.Errorf("unsupported yaml node kind %d for list", node.Kind)
	}
}

type auditResult struct {
	errors   []string
	warnings []string
}

func (result *auditResult) addError(message string, arguments ...any) {
	result.errors = append(result.errors, fmt.Sprintf(message, arguments...))
}

func (result *auditResult) addWarning(message string, arguments ...any) {
	result.warnings = append(result.warnings, fmt.Sprintf(message, arguments...))
}

func (result auditResult) ok() bool {
	return len(result.errors) == 0
}

type environmentLookup func(string) (string, bool)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(arguments []string, stdout io.Writer, stderr io.Writer) int {
	flagSet := pflag.NewFlagSet(commandName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	envFiles := flagSet.StringSlice(flagNameEnvFile, nil, flagUsageEnvFile)
	if parseErr := flagSet.Parse(arguments); parseErr != nil {
		return 2
	}
	configPath := defaultConfigPath
	if flagSet.NArg() > 0 {
		configPath = flagSet.Arg(0)
	}

	result := runAudit(configPath, *envFiles, defaultEnvironmentFn)
	sort.Strings(result.errors)
	sort.Strings(result.warnings)

	for _, warning := range result.warnings {
		_, _ = fmt.Fprintf(stdout, "WARN: %s\n", warning)
	}
	for _, errorMessage := range result.errors {
		_, _ = fmt.Fprintf(stderr, "ERROR: %s\n", errorMessage)
	}
	if !result.ok() {
		_, _ = fmt.Fprintf(stderr, "config-audit failed\n")
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "config-audit OK\n")
	return 0
}

func runAudit(configPath string, envFiles []string, lookupEnvironment environmentLookup) auditResult {
	var result auditResult

	document, readErr := os.ReadFile(configPath)
	if readErr != nil {
		result.addError("read config file %s: %v", configPath, readErr)
		return result
	}

	var root yaml.Node
	if decodeErr := yaml.Unmarshal(document, &root); decodeErr != nil {
		result.addError("parse config file %s: %v", configPath, decodeErr)
		return result
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		result.addError("config file %s: top level must be a mapping", configPath)
		return result
	}

	values := make(map[string]*yaml.Node)
	flattenMapping(root.Content[0], "", values, &result)

	dotEnv := loadEnvFiles(envFiles, &result)
	lookup := func(name string) (string, bool) {
		if value, ok := dotEnv[name]; ok {
			return value, true
		}
		return lookupEnvironment(name)
	}

	checkRequiredKeys(values, lookup, &result)
	checkUnknownKeys(values, &result)
	resolved := checkPlaceholders(values, lookup, &result)
	checkStoreURL(resolved[config.KeyStore], &result)
	checkBackend(resolved[config.KeyBrowserBackend], &result)
	checkDurations(resolved, &result)
	checkIgnoredExceptions(values[config.KeyIgnoredExceptions], &result)
	checkAccountFixture(resolved[config.KeyFixtureAccount], &result)

	return result
}

func flattenMapping(node *yaml.Node, prefix string, values map[string]*yaml.Node, result *auditResult) {
	seen := make(map[string]struct{}, len(node.Content)/2)
	for index := 0; index+1 < len(node.Content); index += 2 {
		keyNode := node.Content[index]
		valueNode := node.Content[index+1]
		key := strings.TrimSpace(keyNode.Value)
		if prefix != "" {
			key = prefix + keySeparator + key
		}
		if _, duplicate := seen[key]; duplicate {
			result.addError("line %d: key %s is defined more than once", keyNode.Line, key)
			continue
		}
		seen[key] = struct{}{}
		if valueNode.Kind == yaml.MappingNode {
			flattenMapping(valueNode, key, values, result)
			continue
		}
		values[key] = valueNode
	}
}

func loadEnvFiles(envFiles []string, result *auditResult) map[string]string {
	merged := make(map[string]string)
	for _, envFile := range envFiles {
		trimmed := strings.TrimSpace(envFile)
		if trimmed == "" {
			continue
		}
		values, duplicates, parseErr := parseDotEnv(trimmed)
		if parseErr != nil {
			result.addError("env file %s: %v", trimmed, parseErr)
			continue
		}
		for _, duplicate := range duplicates {
			result.addError("env file %s defines %s more than once", trimmed, duplicate)
		}
		for key, value := range values {
			merged[key] = value
		}
	}
	return merged
}

func parseDotEnv(path string) (map[string]string, []string, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, nil, openErr
	}
	defer func() { _ = file.Close() }()

	entries := make(map[string]string)
	seen := make(map[string]struct{})
	var duplicates []string

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, already := seen[key]; already {
			duplicates = append(duplicates, key)
		}
		seen[key] = struct{}{}
		entries[key] = value
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, nil, scanErr
	}
	return entries, uniqueStrings(duplicates), nil
}

// environmentOverride is the variable viper consults for key.
func environmentOverride(key string) string {
	return config.EnvironmentPrefix + environmentKeyReplacer + strings.ToUpper(strings.ReplaceAll(key, keySeparator, environmentKeyReplacer))
}

func checkRequiredKeys(values map[string]*yaml.Node, lookup environmentLookup, result *auditResult) {
	for _, key := range config.RequiredKeys {
		if override, ok := lookup(environmentOverride(key)); ok && strings.TrimSpace(override) != "" {
			continue
		}
		node, present := values[key]
		if key == config.KeyPasswordInput && !present {
			continue
		}
		if !present || node.Kind != yaml.ScalarNode || strings.TrimSpace(node.Value) == "" {
			result.addError("required key %s is missing or empty (set it or %s)", key, environmentOverride(key))
		}
	}
}

func checkUnknownKeys(values map[string]*yaml.Node, result *auditResult) {
	known := make(map[string]struct{}, len(config.RequiredKeys)+len(config.OptionalKeys))
	for _, key := range config.RequiredKeys {
		known[key] = struct{}{}
	}
	for _, key := range config.OptionalKeys {
		known[key] = struct{}{}
	}
	for key, node := range values {
		if _, ok := known[key]; !ok {
			result.addWarning("line %d: unknown key %s is ignored", node.Line, key)
		}
	}
}

// checkPlaceholders reports ${VAR} references without a value and returns
// every scalar with its placeholders resolved.
func checkPlaceholders(values map[string]*yaml.Node, lookup environmentLookup, result *auditResult) map[string]string {
	resolved := make(map[string]string, len(values))
	for key, node := range values {
		if node.Kind != yaml.ScalarNode {
			continue
		}
		resolved[key] = placeholderPattern.ReplaceAllStringFunc(node.Value, func(match string) string {
			name := placeholderPattern.FindStringSubmatch(match)[1]
			value, ok := lookup(name)
			if !ok {
				result.addError("line %d: %s references ${%s} but %s is not defined", node.Line, key, name, name)
				return ""
			}
			return value
		})
	}
	return resolved
}

func checkStoreURL(store string, result *auditResult) {
	trimmed := strings.TrimSpace(store)
	if trimmed == "" {
		return
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		result.addError("%s %q is not an absolute url", config.KeyStore, trimmed)
		return
	}
	if localURLPattern.MatchString(trimmed) {
		result.addWarning("%s points at a local storefront (%s)", config.KeyStore, parsed.Host)
		return
	}
	if parsed.Scheme != httpsScheme {
		result.addWarning("%s uses %s; storefronts are served over https", config.KeyStore, parsed.Scheme)
	}
}

func checkBackend(backend string, result *auditResult) {
	if _, parseErr := browser.ParseBackend(backend); parseErr != nil {
		result.addError("%s: %v", config.KeyBrowserBackend, parseErr)
	}
}

func checkDurations(resolved map[string]string, result *auditResult) {
	for _, key := range durationKeys {
		value, present := resolved[key]
		if !present {
			continue
		}
		duration, parseErr := time.ParseDuration(strings.TrimSpace(value))
		if parseErr != nil {
			result.addError("%s %q is not a duration", key, value)
			continue
		}
		if duration <= 0 {
			result.addError("%s must be positive, got %s", key, duration)
		}
	}
}

func checkIgnoredExceptions(node *yaml.Node, result *auditResult) {
	if node == nil {
		return
	}
	var patterns stringList
	if decodeErr := node.Decode(&patterns); decodeErr != nil {
		result.addError("line %d: %s: %v", node.Line, config.KeyIgnoredExceptions, decodeErr)
		return
	}
	if len(patterns) == 0 {
		result.addWarning("%s is empty; every uncaught page exception fails its case", config.KeyIgnoredExceptions)
	}
}

func checkAccountFixture(path string, result *auditResult) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return
	}
	if _, statErr := os.Stat(trimmed); statErr != nil {
		result.addWarning("%s %s is not readable (%v); the quick login case will fail", config.KeyFixtureAccount, filepath.Clean(trimmed), statErr)
		return
	}
	if _, fixtureErr := config.LoadAccountFixture(trimmed); fixtureErr != nil {
		result.addError("%s: %v", config.KeyFixtureAccount, fixtureErr)
	}
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	sort.Strings(values)
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if len(unique) == 0 || unique[len(unique)-1] != value {
			unique = append(unique, value)
		}
	}
	return unique
}
