package logutil

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/stratadb/strata/internal/mocks/httpmock"
)

const (
	secretAuthHeader      = "foobarfoobar"
	secretCookieHeader    = "barfoobarfoo"
	secretSetCookieHeader = "foofoobarbar"
	secretLocationHeader  = "https://example.com/path?token=123"
)

func Test_loggingTransport_RoundTrip(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		rtMock := httpmock.NewMockRoundTripper(ctrl)

		var (
			reqBodyContents  = "request foo"
			respBodyContents = "response bar"
		)

		rtMock.EXPECT().
			RoundTrip(gomock.Any()).
			DoAndReturn(func(req *http.Request) (*http.Response, error) {
				// ensure request itself not redacted
				assert.Equal(t, secretAuthHeader, req.Header.Get("Authorization"))
				assert.Equal(t, secretCookieHeader, req.Header.Get("Cookie"))

				// ensure readable body
				buf := new(bytes.Buffer)
				_, err := io.Copy(buf, req.Body)
				assert.NoError(t, err)
				err = req.Body.Close()
				assert.NoError(t, err)
				assert.Equal(t, reqBodyContents, buf.String())

				respBody := io.NopCloser(strings.NewReader(respBodyContents))
				resp := &http.Response{
					StatusCode: http.StatusOK,
					Body:       respBody,
					Header: http.Header{
						"Location":   []string{secretLocationHeader},
						"Set-Cookie": []string{secretSetCookieHeader},
					},
				}

				return resp, nil
			})

		req := &http.Request{
			Method: http.MethodPost,
			URL: &url.URL{
				Scheme:   "https",
				Host:     "example.com",
				Path:     "/bar",
				User:     url.UserPassword("user", "pass"),
				RawQuery: "secret=true",
			},
			Header: http.Header{
				"Authorization": []string{secretAuthHeader},
				"Cookie":        []string{secretCookieHeader},
			},
			Body:          io.NopCloser(strings.NewReader(reqBodyContents)),
			ContentLength: int64(len(reqBodyContents)),
		}
		req = req.WithContext(t.Context())

		// capture debug logs
		logOut := new(bytes.Buffer)
		handler := slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: slog.LevelDebug})
		prev := slog.Default()
		slog.SetDefault(slog.New(handler))
		t.Cleanup(func() { slog.SetDefault(prev) })

		transport := &LoggingTransport{Base: rtMock}
		gotResp, err := transport.RoundTrip(req)
		defer func() {
			err := gotResp.Body.Close()
			assert.NoError(t, err)
		}()
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, gotResp.StatusCode)

		// Validate the response header was restored after redaction
		assert.Equal(t, secretSetCookieHeader, gotResp.Header.Get("Set-Cookie"))
		assert.Equal(t, secretLocationHeader, gotResp.Header.Get("Location"))

		logs, err := io.ReadAll(logOut)
		assert.NoError(t, err)

		t.Logf("logs: %s", logs)
		assert.Equal(t, 3, bytes.Count(logs, []byte(redactedValue)))
		assert.False(t, bytes.Contains(logs, []byte("?token=123")))
	})
}

func Test_redactHTTPHeaders(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		headers := map[string][]string{
			"Authorization": {secretAuthHeader},
			"Cookie":        {secretCookieHeader},
			"Set-Cookie":    {secretSetCookieHeader},
			"Location":      {secretLocationHeader},
		}

		redactHTTPHeaders(headers)

		assert.Equal(t, redactedValue, headers["Authorization"][0])
		assert.Equal(t, redactedValue, headers["Cookie"][0])
		assert.Equal(t, redactedValue, headers["Set-Cookie"][0])
		assert.False(t, strings.Contains(headers["Location"][0], "?token=123"))
	})
}
