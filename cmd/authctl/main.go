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

	"github.com/dropDatabas3/authgate/internal/security/totp"
)

type client struct {
	BaseURL   string
	Bearer    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) post(path string, payload any) (int, []byte, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = b
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(c.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
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
		fmt.Println(strings.TrimSpace(string(body)))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

// call hace el POST, imprime la respuesta y devuelve error si no es 2xx.
func (c *client) call(path string, payload any) error {
	status, body, err := c.post(path, payload)
	if err != nil {
		return err
	}
	c.print(status, body)
	if status/100 != 2 {
		return fmt.Errorf("%s fallo: status=%d", path, status)
	}
	return nil
}

func main() {
	var (
		baseURL = envOr("AUTHGATE_URL", "http://localhost:4000")
		bearer  = envOr("AUTHGATE_TOKEN", "")
		out     = envOr("AUTHGATE_OUT", "json")
		timeout = 10 * time.Second
	)

	cl := &client{HTTP: &http.Client{Timeout: timeout}}

	root := &cobra.Command{
		Use:           "authctl",
		Short:         "CLI para la API de auth (login, 2FA, refresh, logout)",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cl.BaseURL = baseURL
			cl.Bearer = bearer
			cl.OutFormat = out
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del gateway o del auth server (env AUTHGATE_URL)")
	root.PersistentFlags().StringVar(&bearer, "token", bearer, "access token para rutas autenticadas (env AUTHGATE_TOKEN)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	// login
	var username, password string
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "POST /auth/login",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return fmt.Errorf("--username y --password son requeridos")
			}
			return cl.call("/auth/login", map[string]string{"username": username, "password": password})
		},
	}
	loginCmd.Flags().StringVar(&username, "username", "", "usuario")
	loginCmd.Flags().StringVar(&password, "password", "", "password")

	// verify-2fa
	var pendingToken, code string
	verifyCmd := &cobra.Command{
		Use:   "verify-2fa",
		Short: "POST /auth/2fa/verify con el token pendiente del login",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pendingToken == "" || code == "" {
				return fmt.Errorf("--two-factor-token y --code son requeridos")
			}
			return cl.call("/auth/2fa/verify", map[string]string{"twoFactorToken": pendingToken, "totpCode": code})
		},
	}
	verifyCmd.Flags().StringVar(&pendingToken, "two-factor-token", "", "token pendiente devuelto por login")
	verifyCmd.Flags().StringVar(&code, "code", "", "código TOTP de 6 dígitos")

	// setup-2fa: sin --code pide el secreto; con --code habilita
	var setupCode string
	setupCmd := &cobra.Command{
		Use:   "setup-2fa",
		Short: "POST /auth/2fa/setup (requiere --token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cl.Bearer == "" {
				return fmt.Errorf("falta access token (flag --token o env AUTHGATE_TOKEN)")
			}
			var payload any
			if setupCode != "" {
				payload = map[string]string{"totpCode": setupCode}
			}
			return cl.call("/auth/2fa/setup", payload)
		},
	}
	setupCmd.Flags().StringVar(&setupCode, "code", "", "código TOTP para confirmar la habilitación")

	// refresh
	var refreshToken string
	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "POST /auth/refresh (rota el refresh token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if refreshToken == "" {
				return fmt.Errorf("--refresh-token es requerido")
			}
			return cl.call("/auth/refresh", map[string]string{"refreshToken": refreshToken})
		},
	}
	refreshCmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token vigente")

	// logout
	var logoutToken string
	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "POST /auth/logout (revoca el refresh token)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if logoutToken == "" {
				return fmt.Errorf("--refresh-token es requerido")
			}
			return cl.call("/auth/logout", map[string]string{"refreshToken": logoutToken})
		},
	}
	logoutCmd.Flags().StringVar(&logoutToken, "refresh-token", "", "refresh token a revocar")

	// totp-code: offline, útil para probar con los usuarios demo
	var secret string
	totpCmd := &cobra.Command{
		Use:   "totp-code",
		Short: "Calcula el código TOTP actual para un secreto base32",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret es requerido")
			}
			c, err := totp.Code(secret, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(c)
			return nil
		},
	}
	totpCmd.Flags().StringVar(&secret, "secret", "", "secreto base32 (ej. JBSWY3DPEHPK3PXP)")

	root.AddCommand(loginCmd, verifyCmd, setupCmd, refreshCmd, logoutCmd, totpCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}
