package cleanerdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequestConfigDefaults(t *testing.T) {
	cfg, err := DecodeRequestConfig(yamlNode(t, `{url: "https://example.com/"}`))
	require.NoError(t, err)
	assert.Equal(t, "GET", cfg.Method)
	assert.Nil(t, cfg.Body)
}

func TestDecodeRequestConfigBodies(t *testing.T) {
	ts := newTestState(t, "https://example.com/")

	cfg, err := DecodeRequestConfig(yamlNode(t, `
method: post
url: "https://example.com/resolve"
body: {Text: "payload"}
`))
	require.NoError(t, err)
	assert.Equal(t, "POST", cfg.Method)
	require.NotNil(t, cfg.Body)
	payload, contentType, err := cfg.Body.resolve(ts.View())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(payload))
	assert.Equal(t, "text/plain", contentType)

	cfg, err = DecodeRequestConfig(yamlNode(t, `
url: "https://example.com/resolve"
body: {Form: {link: "https://t.co/x"}}
`))
	require.NoError(t, err)
	payload, contentType, err = cfg.Body.resolve(ts.View())
	require.NoError(t, err)
	assert.Equal(t, "link=https%3A%2F%2Ft.co%2Fx", string(payload))
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)

	cfg, err = DecodeRequestConfig(yamlNode(t, `
url: "https://example.com/resolve"
body: {Json: {url: "https://t.co/x", follow: true}}
`))
	require.NoError(t, err)
	payload, contentType, err = cfg.Body.resolve(ts.View())
	require.NoError(t, err)
	assert.JSONEq(t, `{"url": "https://t.co/x", "follow": true}`, string(payload))
	assert.Equal(t, "application/json", contentType)
}

func TestDecodeResponseFieldVariants(t *testing.T) {
	resp := &HttpResponse{
		StatusCode: 301,
		Location:   "https://next.example/",
		Body:       []byte("body text"),
		Headers:    map[string]string{"X-Target": "https://hdr.example/"},
		Cookies:    map[string]string{"dest": "https://cookie.example/"},
	}

	field, err := decodeResponseField(yamlNode(t, `Body`))
	require.NoError(t, err)
	assert.Equal(t, "body text", *field.extract(resp))

	field, err = decodeResponseField(yamlNode(t, `Url`))
	require.NoError(t, err)
	assert.Equal(t, "https://next.example/", *field.extract(resp))

	field, err = decodeResponseField(yamlNode(t, `{Header: X-Target}`))
	require.NoError(t, err)
	assert.Equal(t, "https://hdr.example/", *field.extract(resp))

	field, err = decodeResponseField(yamlNode(t, `{Cookie: dest}`))
	require.NoError(t, err)
	assert.Equal(t, "https://cookie.example/", *field.extract(resp))

	field, err = decodeResponseField(yamlNode(t, `{Header: Missing}`))
	require.NoError(t, err)
	assert.Nil(t, field.extract(resp))

	_, err = decodeResponseField(yamlNode(t, `Bogus`))
	require.Error(t, err)
}
