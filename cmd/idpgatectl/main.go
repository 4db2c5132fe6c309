package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte, headers map[string]string) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	cli := &client{
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
			// No seguir redirects: el valor del callback ESTÁ en el Location.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	root := &cobra.Command{
		Use:   "idpgatectl",
		Short: "CLI de operación para idpgate",
	}
	root.PersistentFlags().StringVar(&cli.BaseURL, "base-url", envOr("IDPGATE_URL", "http://localhost:8084"), "base URL del servicio")
	root.PersistentFlags().StringVarP(&cli.OutFormat, "output", "o", "json", "formato de salida: json|text")

	root.AddCommand(healthCmd(cli))
	root.AddCommand(linkSessionCmd(cli))
	root.AddCommand(callbackCmd(cli))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func healthCmd(cli *client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Verifica healthz y readyz",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range []string{"/healthz", "/readyz"} {
				status, body, err := cli.do(http.MethodGet, path, nil, nil)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %d\n", path, status)
				cli.print(status, body)
			}
			return nil
		},
	}
}

func linkSessionCmd(cli *client) *cobra.Command {
	var sessionToken, fingerprint string

	cmd := &cobra.Command{
		Use:   "link-session",
		Short: "Crea una sesión de linking",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"sessionToken": sessionToken})
			status, respBody, err := cli.do(http.MethodPost, "/idp/link-sessions", body, map[string]string{
				"Cookie": "fingerprintId=" + fingerprint,
			})
			if err != nil {
				return err
			}
			cli.print(status, respBody)
			if status != http.StatusCreated {
				return fmt.Errorf("unexpected status %d", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionToken, "session-token", "", "token de la sesión activa (requerido)")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "valor de la cookie de fingerprint (requerido)")
	_ = cmd.MarkFlagRequired("session-token")
	_ = cmd.MarkFlagRequired("fingerprint")
	return cmd
}

func callbackCmd(cli *client) *cobra.Command {
	var provider, id, token, requestID, organization string

	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Dispara un callback y muestra la decisión (Location)",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := make([]string, 0, 4)
			add := func(k, v string) {
				if v != "" {
					q = append(q, k+"="+v)
				}
			}
			add("id", id)
			add("token", token)
			add("requestId", requestID)
			add("organization", organization)

			path := "/idp/" + provider + "/callback?" + strings.Join(q, "&")
			req, err := http.NewRequest(http.MethodGet, strings.TrimRight(cli.BaseURL, "/")+path, nil)
			if err != nil {
				return err
			}
			resp, err := cli.HTTP.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			fmt.Printf("status=%d\n", resp.StatusCode)
			if loc := resp.Header.Get("Location"); loc != "" {
				fmt.Printf("location=%s\n", loc)
				return nil
			}
			cli.print(resp.StatusCode, body)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider slug (requerido)")
	cmd.Flags().StringVar(&id, "id", "", "intent id")
	cmd.Flags().StringVar(&token, "token", "", "intent token")
	cmd.Flags().StringVar(&requestID, "request-id", "", "auth request id")
	cmd.Flags().StringVar(&organization, "organization", "", "organization id")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}
