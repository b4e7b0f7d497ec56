// aspirectl es el CLI de operación: habla con la API HTTP de aspired.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	u := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, u, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) error {
	if status/100 != 2 {
		return fmt.Errorf("status=%d body=%s", status, string(body))
	}
	var v any
	if json.Unmarshal(body, &v) == nil {
		p, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(p))
		return nil
	}
	fmt.Println(string(body))
	return nil
}

func main() {
	var (
		baseURL = envOr("ASPIRE_API_URL", "http://localhost:8080")
		out     = envOr("ASPIRE_OUT", "json")
	)

	root := &cobra.Command{
		Use:   "aspirectl",
		Short: "CLI de operación contra la API de aspired",
	}
	root.PersistentFlags().StringVar(&baseURL, "api-url", baseURL, "URL base de la API (env ASPIRE_API_URL)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, OutFormat: out, HTTP: &http.Client{Timeout: 30 * time.Second}}

	// connections
	connCmd := &cobra.Command{Use: "connections", Short: "Gestión de conexiones bancarias"}

	var tenantID string
	listConnCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar conexiones del tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			status, body, err := cl.do("GET", "/v1/connections?tenant_id="+url.QueryEscape(tenantID), nil)
			if err != nil {
				return err
			}
			return cl.print(status, body)
		},
	}
	listConnCmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")

	disconnectCmd := &cobra.Command{
		Use:   "disconnect <connection-id>",
		Short: "Revocar una conexión (purga credenciales)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("DELETE", "/v1/connections/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return cl.print(status, body)
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync <connection-id>",
		Short: "Correr un sync run ahora",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("POST", "/v1/connections/"+url.PathEscape(args[0])+"/sync", nil)
			if err != nil {
				return err
			}
			return cl.print(status, body)
		},
	}

	balancesCmd := &cobra.Command{
		Use:   "balances <connection-id>",
		Short: "Tomar un snapshot de saldos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("POST", "/v1/connections/"+url.PathEscape(args[0])+"/balances", nil)
			if err != nil {
				return err
			}
			return cl.print(status, body)
		},
	}
	connCmd.AddCommand(listConnCmd, disconnectCmd, syncCmd, balancesCmd)

	// receipts
	receiptsCmd := &cobra.Command{Use: "receipts", Short: "Consulta del ledger de recibos"}

	var recTenant, recOffice string
	var recLimit int
	listRecCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar recibos (más recientes primero)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if recTenant == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			q := url.Values{}
			q.Set("tenant_id", recTenant)
			if recOffice != "" {
				q.Set("office_id", recOffice)
			}
			if recLimit > 0 {
				q.Set("limit", fmt.Sprint(recLimit))
			}
			status, body, err := cl.do("GET", "/v1/receipts?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			return cl.print(status, body)
		},
	}
	listRecCmd.Flags().StringVar(&recTenant, "tenant", "", "tenant id")
	listRecCmd.Flags().StringVar(&recOffice, "office", "", "office id (opcional)")
	listRecCmd.Flags().IntVar(&recLimit, "limit", 0, "máximo de filas")

	verifyRecCmd := &cobra.Command{
		Use:   "verify <receipt-id>",
		Short: "Verificar hash y firma de un recibo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("POST", "/v1/receipts/"+url.PathEscape(args[0])+"/verify", nil)
			if err != nil {
				return err
			}
			return cl.print(status, body)
		},
	}
	receiptsCmd.AddCommand(listRecCmd, verifyRecCmd)

	root.AddCommand(connCmd, receiptsCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
