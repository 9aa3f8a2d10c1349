package cleanerdoc

import (
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strings"

	"github.com/valyala/fasthttp"
	"gopkg.in/yaml.v3"

	"github.com/edgecomet/urlcleaner/internal/httpconfig"
)

// RequestConfig describes one outbound HTTP request, shared by
// StringSource::HttpRequest and Action::ExpandRedirect.
type RequestConfig struct {
	Method  string
	Url     StringSource
	Headers map[string]StringSource
	Body    *RequestBody
}

// RequestBody is the declarative request payload: literal text, a form
// (urlencoded), or a JSON document marshaled at decode time.
type RequestBody struct {
	Kind string // "Text", "Form", "Json"
	Text StringSource
	Form map[string]StringSource
	JSON []byte
}

func decodeRequestBody(node *yaml.Node) (*RequestBody, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return nil, fmt.Errorf("request body: %w", err)
	}
	switch tag {
	case "Text":
		src, err := decodeChildStringSource(payload)
		if err != nil {
			return nil, err
		}
		return &RequestBody{Kind: "Text", Text: src}, nil
	case "Form":
		var fields map[string]yaml.Node
		if err := decodePayload(payload, &fields); err != nil {
			return nil, err
		}
		form := make(map[string]StringSource, len(fields))
		for name, n := range fields {
			n := n
			src, err := DecodeStringSource(&n)
			if err != nil {
				return nil, err
			}
			form[name] = src
		}
		return &RequestBody{Kind: "Form", Form: form}, nil
	case "Json":
		var doc any
		if err := decodePayload(payload, &doc); err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("request body Json: %w", err)
		}
		return &RequestBody{Kind: "Json", JSON: encoded}, nil
	default:
		return nil, fmt.Errorf("request body: unknown variant %q", tag)
	}
}

// resolve renders the body against the task state, returning the payload
// and its content type.
func (b *RequestBody) resolve(v *TaskStateView) ([]byte, string, error) {
	switch b.Kind {
	case "Text":
		val, err := b.Text.Get(v)
		if err != nil {
			return nil, "", err
		}
		if val == nil {
			return nil, "", nil
		}
		return []byte(*val), "text/plain", nil
	case "Form":
		form := neturl.Values{}
		for name, src := range b.Form {
			val, err := src.Get(v)
			if err != nil {
				return nil, "", err
			}
			if val != nil {
				form.Set(name, *val)
			}
		}
		return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
	case "Json":
		return b.JSON, "application/json", nil
	default:
		return nil, "", fmt.Errorf("request body: unknown kind %q", b.Kind)
	}
}

// DecodeRequestConfig decodes a {method?, url, headers?, body?} mapping.
func DecodeRequestConfig(node *yaml.Node) (RequestConfig, error) {
	var raw struct {
		Method  string               `yaml:"method"`
		Url     yaml.Node            `yaml:"url"`
		Headers map[string]yaml.Node `yaml:"headers"`
		Body    yaml.Node            `yaml:"body"`
	}
	if err := node.Decode(&raw); err != nil {
		return RequestConfig{}, fmt.Errorf("cleanerdoc: request config: %w", err)
	}
	method := raw.Method
	if method == "" {
		method = http.MethodGet
	}
	url, err := DecodeStringSource(&raw.Url)
	if err != nil {
		return RequestConfig{}, err
	}
	cfg := RequestConfig{Method: strings.ToUpper(method), Url: url}
	if len(raw.Headers) > 0 {
		cfg.Headers = make(map[string]StringSource, len(raw.Headers))
		for name, n := range raw.Headers {
			n := n
			src, err := DecodeStringSource(&n)
			if err != nil {
				return RequestConfig{}, err
			}
			cfg.Headers[name] = src
		}
	}
	if raw.Body.Kind != 0 {
		body, err := decodeRequestBody(&raw.Body)
		if err != nil {
			return RequestConfig{}, err
		}
		cfg.Body = body
	}
	return cfg, nil
}

// HttpResponse is the result of a single, non-redirect-following outbound
// request.
type HttpResponse struct {
	StatusCode int
	Location   string
	Body       []byte
	Headers    map[string]string
	Cookies    map[string]string
}

// sendRequest resolves cfg's dynamic fields against v and issues the
// request, serialized through the task's Unthreader.
func sendRequest(cfg RequestConfig, v *TaskStateView) (*HttpResponse, error) {
	targetURL, err := cfg.Url.Get(v)
	if err != nil {
		return nil, err
	}
	if targetURL == nil {
		return nil, fmt.Errorf("cleanerdoc: http request: url resolved to none")
	}
	headers := make(map[string]string, len(cfg.Headers))
	for name, src := range cfg.Headers {
		val, err := src.Get(v)
		if err != nil {
			return nil, err
		}
		if val != nil {
			headers[name] = *val
		}
	}
	var body []byte
	if cfg.Body != nil {
		payload, contentType, err := cfg.Body.resolve(v)
		if err != nil {
			return nil, err
		}
		body = payload
		if contentType != "" {
			if _, explicit := headers["Content-Type"]; !explicit {
				headers["Content-Type"] = contentType
			}
		}
	}
	return doHttpRequestWithBody(v, v.HttpClientConfig(), cfg.Method, *targetURL, headers, body)
}

// doHttpRequest issues a single request against targetURL using cfg.
// fasthttp.Client.Do follows no redirects, whatever cfg.Redirect says
// (see httpconfig.NewClient); hop-by-hop expansion is the caller's job (Action::ExpandRedirect + Action::Repeat).
func doHttpRequest(v *TaskStateView, cfg httpconfig.HttpClientConfig, method, targetURL string, headers map[string]string) (*HttpResponse, error) {
	return doHttpRequestWithBody(v, cfg, method, targetURL, headers, nil)
}

func doHttpRequestWithBody(v *TaskStateView, cfg httpconfig.HttpClientConfig, method, targetURL string, headers map[string]string, body []byte) (*HttpResponse, error) {
	client := httpconfig.NewClient(cfg)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(targetURL)
	req.Header.SetMethod(method)
	if cfg.Referer != "" {
		req.Header.Set("Referer", cfg.Referer)
	}
	for name, values := range cfg.DefaultHeaders {
		for _, val := range values {
			req.Header.Add(name, val)
		}
	}
	for name, val := range headers {
		req.Header.Set(name, val)
	}
	if len(body) > 0 {
		req.SetBody(body)
	}

	release := v.Unthreader().Unthread(v.State().ID)
	defer release()

	if err := client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("cleanerdoc: http request %s %q: %w", method, targetURL, err)
	}

	out := &HttpResponse{
		StatusCode: resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
		Headers:    make(map[string]string),
		Cookies:    make(map[string]string),
	}
	resp.Header.VisitAll(func(key, value []byte) {
		out.Headers[string(key)] = string(value)
	})
	resp.Header.VisitAllCookie(func(key, value []byte) {
		var cookie fasthttp.Cookie
		if err := cookie.ParseBytes(value); err == nil {
			out.Cookies[string(key)] = string(cookie.Value())
		}
	})
	out.Location = string(resp.Header.Peek("Location"))
	return out, nil
}

// responseField selects which part of an HttpResponse a StringSource
// extracts: "Body", "Status" (the status code), {"Header": name}, "Url"
// (the Location header), or {"Cookie": name}.
type responseField struct {
	Kind string
	Name string
}

func decodeResponseField(node *yaml.Node) (responseField, error) {
	tag, payload, err := singleKeyTag(node)
	if err != nil {
		return responseField{}, fmt.Errorf("response field: %w", err)
	}
	switch tag {
	case "Body", "Url", "Status":
		return responseField{Kind: tag}, nil
	case "Header", "Cookie":
		var name string
		if err := decodePayload(payload, &name); err != nil {
			return responseField{}, err
		}
		return responseField{Kind: tag, Name: name}, nil
	default:
		return responseField{}, fmt.Errorf("response field: unknown variant %q", tag)
	}
}

func (f responseField) extract(resp *HttpResponse) *string {
	switch f.Kind {
	case "Body":
		body := string(resp.Body)
		return &body
	case "Url":
		if resp.Location == "" {
			return nil
		}
		loc := resp.Location
		return &loc
	case "Status":
		status := fmt.Sprintf("%d", resp.StatusCode)
		return &status
	case "Header":
		if val, ok := resp.Headers[f.Name]; ok {
			return &val
		}
		return nil
	case "Cookie":
		if val, ok := resp.Cookies[f.Name]; ok {
			return &val
		}
		return nil
	default:
		return nil
	}
}

type srcHttpRequest struct {
	Request  RequestConfig
	Response responseField
}

func (s srcHttpRequest) Get(v *TaskStateView) (*string, error) {
	resp, err := sendRequest(s.Request, v)
	if err != nil {
		return nil, err
	}
	return s.Response.extract(resp), nil
}
