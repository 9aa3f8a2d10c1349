package cleanerdoc

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/internal/httpconfig"
	"github.com/edgecomet/urlcleaner/internal/params"
)

// Cleaner is the compiled top-level document: default params, named
// commons, and the root action tree. It is immutable once compiled and may
// be shared across jobs.
type Cleaner struct {
	Params  *params.Params
	Commons *Commons
	Action  Action
}

// ParseCleaner compiles a serialized cleaner document. The document is a
// mapping {params?, commons?, actions} where actions is a sequence of
// action nodes applied in order.
func ParseCleaner(data []byte) (*Cleaner, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("cleanerdoc: parse cleaner: %w", err)
	}
	c := &Cleaner{}
	if err := root.Decode(c); err != nil {
		return nil, err
	}
	return c, nil
}

// UnmarshalYAML decodes the {params?, commons?, actions} document shape.
func (c *Cleaner) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Params  yaml.Node   `yaml:"params"`
		Commons yaml.Node   `yaml:"commons"`
		Actions []yaml.Node `yaml:"actions"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("cleanerdoc: cleaner: %w", err)
	}
	if len(raw.Actions) == 0 {
		return fmt.Errorf("cleanerdoc: cleaner: actions is required")
	}

	c.Params = params.New()
	if raw.Params.Kind != 0 {
		p, err := decodeParams(&raw.Params)
		if err != nil {
			return err
		}
		c.Params = p
	}

	c.Commons = NewCommons()
	if raw.Commons.Kind != 0 {
		if err := raw.Commons.Decode(c.Commons); err != nil {
			return err
		}
	}

	items := make([]Action, len(raw.Actions))
	for i := range raw.Actions {
		a, err := DecodeAction(&raw.Actions[i])
		if err != nil {
			return fmt.Errorf("cleanerdoc: cleaner actions[%d]: %w", i, err)
		}
		items[i] = a
	}
	if len(items) == 1 {
		c.Action = items[0]
	} else {
		c.Action = actAll{Items: items}
	}
	return nil
}

// Apply evaluates the root action against ts.
func (c *Cleaner) Apply(ts *TaskState) error {
	if ts.Params == nil {
		ts.Params = c.Params
	}
	if ts.Commons == nil {
		ts.Commons = c.Commons
	}
	if err := c.Action.Apply(ts); err != nil {
		return fmt.Errorf("cleanerdoc: apply cleaner: %w", err)
	}
	return nil
}

// decodeParams decodes the document-level params mapping: flags (list),
// vars, sets (name -> list), lists, maps (name -> {map, if_null?, else?}),
// partitionings (name -> ordered sequence of {bucket: [elements]} pairs,
// where a null element populates the bucket's null slot), cache toggles,
// and the HTTP client config.
func decodeParams(node *yaml.Node) (*params.Params, error) {
	var raw struct {
		Flags            []string              `yaml:"flags"`
		Vars             map[string]string     `yaml:"vars"`
		Sets             map[string][]string   `yaml:"sets"`
		Lists            map[string][]string   `yaml:"lists"`
		Maps             map[string]yaml.Node  `yaml:"maps"`
		Partitionings    map[string]yaml.Node  `yaml:"partitionings"`
		ReadCache        bool                  `yaml:"read_cache"`
		WriteCache       bool                  `yaml:"write_cache"`
		HTTPClientConfig yaml.Node             `yaml:"http_client_config"`
	}
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("cleanerdoc: params: %w", err)
	}

	p := params.New()
	for _, f := range raw.Flags {
		p.Flags[f] = struct{}{}
	}
	for k, v := range raw.Vars {
		p.Vars[k] = v
	}
	for name, values := range raw.Sets {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		p.Sets[name] = set
	}
	for name, values := range raw.Lists {
		p.Lists[name] = append([]string(nil), values...)
	}
	for name, n := range raw.Maps {
		n := n
		m, err := decodeStringMap(&n)
		if err != nil {
			return nil, fmt.Errorf("cleanerdoc: params.maps[%s]: %w", name, err)
		}
		p.Maps[name] = m
	}
	for name, n := range raw.Partitionings {
		n := n
		np, err := decodePartitioning(&n)
		if err != nil {
			return nil, fmt.Errorf("cleanerdoc: params.partitionings[%s]: %w", name, err)
		}
		p.Partitionings[name] = np
	}
	p.ReadCache = raw.ReadCache
	p.WriteCache = raw.WriteCache
	if raw.HTTPClientConfig.Kind != 0 {
		cfg, err := decodeHttpClientConfig(&raw.HTTPClientConfig)
		if err != nil {
			return nil, err
		}
		p.HTTPClientConfig = cfg
	}
	return p, nil
}

// decodeStringMap decodes a {map, if_null?, else?} mapping. The Map type
// cannot express a null entry value ("no value"), so a null value inside
// map decodes as the empty string; it is not rejected.
func decodeStringMap(node *yaml.Node) (params.Map[string], error) {
	var raw struct {
		Map    map[string]string `yaml:"map"`
		IfNull *string           `yaml:"if_null"`
		Else   *string           `yaml:"else"`
	}
	if err := node.Decode(&raw); err != nil {
		return params.Map[string]{}, err
	}
	m := params.Map[string]{Entries: raw.Map, IfNull: raw.IfNull, Else: raw.Else}
	if m.Entries == nil {
		m.Entries = map[string]string{}
	}
	return m, nil
}

// decodePartitioning decodes an ordered sequence of single-key
// {bucket_name: [elements]} mappings. Elements may be null, which reserves
// the partitioning's null slot for that bucket.
func decodePartitioning(node *yaml.Node) (*params.NamedPartitioning, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("partitioning must be a sequence of {bucket: [elements]} pairs")
	}
	pairs := make([]params.PartitionBucket, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.MappingNode || len(item.Content) != 2 {
			return nil, fmt.Errorf("partitioning bucket must be a single-key mapping")
		}
		name := item.Content[0].Value
		elems := item.Content[1]
		if elems.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("partitioning bucket %q must map to a sequence", name)
		}
		bucket := params.PartitionBucket{Name: name}
		for _, e := range elems.Content {
			if e.Tag == "!!null" {
				bucket.Values = append(bucket.Values, nil)
				continue
			}
			v := e.Value
			bucket.Values = append(bucket.Values, &v)
		}
		pairs = append(pairs, bucket)
	}
	return params.NewNamedPartitioning(pairs)
}

// decodeHttpClientConfig decodes the full (non-diff) HTTP client config.
// The field vocabulary matches decodeHttpClientConfigDiff plus the proxy
// list and extra_root_certs, which are only accepted at the base-config
// level.
func decodeHttpClientConfig(node *yaml.Node) (httpconfig.HttpClientConfig, error) {
	var raw struct {
		DefaultHeaders map[string][]string `yaml:"default_headers"`
		HTTPSOnly      bool                `yaml:"https_only"`
		Referer        string              `yaml:"referer"`
		NoProxy        []string            `yaml:"no_proxy"`
		TimeoutMs      *int64              `yaml:"timeout_ms"`
		RedirectLimit  *int                `yaml:"redirect_limit"`
		Proxies        []struct {
			URL       string `yaml:"url"`
			Mode      string `yaml:"mode"`
			BasicUser string `yaml:"basic_user"`
			BasicPass string `yaml:"basic_pass"`
			Custom    string `yaml:"custom_auth_header"`
		} `yaml:"proxies"`
		ExtraRootCerts []string `yaml:"extra_root_certs"`
	}
	if err := node.Decode(&raw); err != nil {
		return httpconfig.HttpClientConfig{}, fmt.Errorf("cleanerdoc: http_client_config: %w", err)
	}

	cfg := httpconfig.HttpClientConfig{
		DefaultHeaders: raw.DefaultHeaders,
		Redirect:       httpconfig.NoRedirects(),
		HTTPSOnly:      raw.HTTPSOnly,
		Referer:        raw.Referer,
		NoProxy:        raw.NoProxy,
	}
	if raw.RedirectLimit != nil {
		cfg.Redirect = httpconfig.LimitedRedirects(*raw.RedirectLimit)
	}
	if raw.TimeoutMs != nil {
		cfg.Timeout = time.Duration(*raw.TimeoutMs) * time.Millisecond
	}
	for _, proxy := range raw.Proxies {
		pc := httpconfig.ProxyConfig{URL: proxy.URL}
		switch proxy.Mode {
		case "", "All":
			pc.Mode = httpconfig.ProxyModeAll
		case "Https":
			pc.Mode = httpconfig.ProxyModeHTTPS
		case "Http":
			pc.Mode = httpconfig.ProxyModeHTTP
		default:
			return httpconfig.HttpClientConfig{}, fmt.Errorf("cleanerdoc: http_client_config: unknown proxy mode %q", proxy.Mode)
		}
		switch {
		case proxy.Custom != "":
			pc.Auth = httpconfig.ProxyAuth{Custom: proxy.Custom, HasCustom: true}
		case proxy.BasicUser != "" || proxy.BasicPass != "":
			pc.Auth = httpconfig.ProxyAuth{BasicUser: proxy.BasicUser, BasicPass: proxy.BasicPass, HasBasic: true}
		}
		cfg.Proxies = append(cfg.Proxies, pc)
	}
	for _, pem := range raw.ExtraRootCerts {
		cfg.ExtraRootCerts = append(cfg.ExtraRootCerts, []byte(pem))
	}
	return cfg, nil
}
