// Command wasmctl is the operator CLI for a running gateway: enabling
// pairing mode, deploying or stopping an Application, and listing known
// devices, following the teacher's ocx-cli's flat-flag, HTTP-to-gateway
// shape (cmd/ocx-cli/main.go).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/wasmbed/wasmbed/internal/identity"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gatewayURL := os.Getenv("WASMBED_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = "http://localhost:8080"
	}

	switch os.Args[1] {
	case "pairing":
		cmdPairing(gatewayURL)
	case "deploy":
		cmdDeploy(gatewayURL)
	case "stop":
		cmdStop(gatewayURL)
	case "devices":
		cmdDevices(gatewayURL)
	case "provision":
		cmdProvision()
	case "version":
		fmt.Printf("wasmctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`wasmctl v` + version + `

Usage: wasmctl <command> [flags]

Commands:
  pairing enable|disable     Open or close the gateway's pairing window
  deploy                     Deploy a WebAssembly application
  stop                       Stop a deployed application
  devices                    List known devices and their phase
  provision                  Generate a long-term device/gateway identity
  version                    Print version
  help                       Show this help

Environment:
  WASMBED_GATEWAY_URL   Gateway admin HTTP URL (default: http://localhost:8080)

Examples:
  wasmctl pairing enable
  wasmctl deploy --name blink --file blink.wasm --all-devices
  wasmctl deploy --name blink --file blink.wasm --device dev-1 --device dev-2
  wasmctl stop --name blink
  wasmctl devices
  wasmctl provision --common-name dev-17 --cert dev-17.crt --key dev-17.key`)
}

func cmdPairing(gatewayURL string) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: pairing requires enable|disable")
		os.Exit(1)
	}
	var method string
	switch os.Args[2] {
	case "enable":
		method = http.MethodPost
	case "disable":
		method = http.MethodDelete
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown pairing subcommand %q\n", os.Args[2])
		os.Exit(1)
	}
	mustDo(method, gatewayURL+"/admin/pairing", nil)
	fmt.Println("ok")
}

func cmdDeploy(gatewayURL string) {
	var name, displayName, file string
	var devices []string
	all := false

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name":
			i++
			if i < len(args) {
				name = args[i]
			}
		case "--display-name":
			i++
			if i < len(args) {
				displayName = args[i]
			}
		case "--file":
			i++
			if i < len(args) {
				file = args[i]
			}
		case "--device":
			i++
			if i < len(args) {
				devices = append(devices, args[i])
			}
		case "--all-devices":
			all = true
		}
	}

	if name == "" || file == "" {
		fmt.Fprintln(os.Stderr, "Error: --name and --file are required")
		os.Exit(1)
	}
	payload, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read %s: %v\n", file, err)
		os.Exit(1)
	}

	body, err := json.Marshal(map[string]interface{}{
		"name":          name,
		"display_name":  displayName,
		"payload_bytes": payload,
		"selector": map[string]interface{}{
			"devices": devices,
			"all":     all,
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode request: %v\n", err)
		os.Exit(1)
	}

	resp := mustDo(http.MethodPost, gatewayURL+"/admin/applications", body)
	fmt.Println(resp)
}

func cmdStop(gatewayURL string) {
	var name string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		if args[i] == "--name" {
			i++
			if i < len(args) {
				name = args[i]
			}
		}
	}
	if name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		os.Exit(1)
	}
	resp := mustDo(http.MethodPost, gatewayURL+"/admin/applications/"+name+"/stop", nil)
	fmt.Println(resp)
}

func cmdDevices(gatewayURL string) {
	resp := mustDo(http.MethodGet, gatewayURL+"/admin/devices", nil)
	fmt.Println(resp)
}

func cmdProvision() {
	var commonName, certPath, keyPath string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--common-name":
			i++
			if i < len(args) {
				commonName = args[i]
			}
		case "--cert":
			i++
			if i < len(args) {
				certPath = args[i]
			}
		case "--key":
			i++
			if i < len(args) {
				keyPath = args[i]
			}
		}
	}
	if commonName == "" || certPath == "" || keyPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --common-name, --cert, and --key are required")
		os.Exit(1)
	}
	if err := identity.Provision(commonName, certPath, keyPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s and %s\n", certPath, keyPath)
}

func mustDo(method, url string, body []byte) string {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: build request: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		fmt.Fprintf(os.Stderr, "Error: gateway returned %s: %s\n", resp.Status, string(data))
		os.Exit(1)
	}
	return string(data)
}
