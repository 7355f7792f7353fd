package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/vsign/cmd/util"
	"github.com/ValentinKolb/vsign/rpc/client"
	"github.com/ValentinKolb/vsign/rpc/common"
	"github.com/spf13/cobra"
)

var (
	clientConfig  *common.ClientConfig
	signingClient *client.SigningClient

	// ClientCommands represents the client command group
	ClientCommands = &cobra.Command{
		Use:                "client",
		Short:              "Call the signing server",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Add common RPC flags to the client command
	util.SetupRPCClientFlags(ClientCommands)

	// Add subcommands
	ClientCommands.AddCommand(echoCmd)
	ClientCommands.AddCommand(healthCmd)
	ClientCommands.AddCommand(signCmd)
	ClientCommands.AddCommand(verifyCmd)
	ClientCommands.AddCommand(keysCmd)
}

// setupClient connects one session to the server
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.PrepareCommand(cmd); err != nil {
		return err
	}

	var err error
	clientConfig, err = util.GetClientConfig()
	if err != nil {
		return err
	}
	client.Logger.Debugf(clientConfig.String())

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	session, err := client.NewManager(client.Dialer(clientConfig.Server, clientConfig.Dial), clientConfig.Retry, client.WithName("cli"))
	if err != nil {
		return err
	}
	if err := session.Connect(cmd.Context()); err != nil {
		_ = session.Close()
		return fmt.Errorf("connect to %s: %w", clientConfig.Server, err)
	}

	signingClient = client.NewSigningClient(session, s)
	return nil
}

func closeClient(_ *cobra.Command, _ []string) error {
	if signingClient == nil {
		return nil
	}
	return signingClient.Session().Close()
}

// callContext bounds one call by the configured call timeout
func callContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	if clientConfig.CallTimeout > 0 {
		return context.WithTimeout(cmd.Context(), clientConfig.CallTimeout)
	}
	return context.WithCancel(cmd.Context())
}
