package cli

import (
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/annotext/internal/adapters/driving/mcp"
	"github.com/custodia-labs/annotext/internal/logger"
)

var mcpFlags struct {
	host string
	port int
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Model Context Protocol integration",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose search and articles to MCP clients",
	Long: `Serve annotext over the Model Context Protocol. Clients can search
articles and comments, list articles and read an article with its comments.

Without --port the server speaks JSON-RPC on stdin and stdout, which is
what desktop assistants expect when they launch annotext themselves.
With --port it serves the streamable HTTP transport.

  annotext mcp serve
  annotext mcp serve --port 8091`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpFlags.host, "host", "127.0.0.1", "HTTP listen address")
	mcpServeCmd.Flags().IntVarP(&mcpFlags.port, "port", "p", 0, "HTTP port (0 serves stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	if searchService == nil {
		return notConfigured("search")
	}
	server, err := mcp.NewServer(&mcp.Ports{
		Search:   searchService,
		Articles: articleService,
		Comments: commentService,
	}, mcp.WithVersion(version))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mcpFlags.port <= 0 {
		// stdout carries the protocol; logs go to stderr only.
		return server.Run(ctx)
	}
	addr := net.JoinHostPort(mcpFlags.host, strconv.Itoa(mcpFlags.port))
	logger.Info("MCP server on http://%s", addr)
	return server.RunHTTP(ctx, addr)
}
