package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	defaultEndpoint = "http://127.0.0.1:8547"
	endpointEnv     = "RESCUED_API"
	tokenEnv        = "RESCUED_TOKEN"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "rescue":
		return runRescue(args[1:], stdout, stderr)
	case "collateral":
		return runCollateral(args[1:], stdout, stderr)
	case "vault":
		return runVault(args[1:], stdout, stderr)
	case "params":
		return runParams(args[1:], stdout, stderr)
	case "role":
		return runRole(args[1:], stdout, stderr)
	case "pause":
		return runPause(args[1:], stdout, stderr)
	case "events":
		return runEvents(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`
Usage: rescuectl <command> [flags]

Keys and tokens:
  keygen     --out <path>                      create an encrypted keystore
  address    --keystore <path>                 print the address of a keystore
  token      --principal <addr> [--ttl 1h]     mint an API bearer token

API (use --api and --token, or RESCUED_API and RESCUED_TOKEN):
  rescue     --collateral-type <ct> --handler <addr>
  collateral list | get <ct> | register <ct> <token> | reassign <ct> <token>
  vault      list | get <id> | set <id> <true|false>
  params     get | set <key> <value>
  role       list <role> | check <role> <addr> | grant <role> <addr> | revoke <role> <addr>
  pause      get <module> | set <module> <true|false>
  events     [--type <type>] [--limit <n>]`)
}

func printError(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
