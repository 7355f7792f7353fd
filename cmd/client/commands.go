package client

import (
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ValentinKolb/vsign/cmd/util"
	"github.com/ValentinKolb/vsign/lib/signer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	echoCmd = &cobra.Command{
		Use:   "echo [data]",
		Short: "Sends data to the echo service and prints the round trip time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callContext(cmd)
			defer cancel()

			start := time.Now()
			data, serverTime, err := signingClient.Echo(ctx, []byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("%s (rtt %s, server time %s)\n", data, time.Since(start).Round(time.Microsecond), serverTime.Format(time.RFC3339Nano))
			return nil
		},
	}
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Checks whether the server is serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callContext(cmd)
			defer cancel()

			serving, err := signingClient.Health(ctx)
			if err != nil {
				return err
			}
			if !serving {
				return fmt.Errorf("server at %s is not serving", clientConfig.Server)
			}
			fmt.Println("serving")
			return nil
		},
	}
	signCmd = &cobra.Command{
		Use:   "sign [data]",
		Short: "Signs data and prints the base64 encoded signature",
		Long:  "Signs data with the given key. Without --key-id the default key of --key-type is used; without --algorithm the default algorithm of the key type.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyType, alg, err := keyFlags()
			if err != nil {
				return err
			}

			ctx, cancel := callContext(cmd)
			defer cancel()

			sig, err := signingClient.Sign(ctx, viper.GetString("key-id"), keyType, alg, []byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("key:       %s\n", sig.KeyID)
			fmt.Printf("algorithm: %s\n", sig.Algorithm)
			fmt.Printf("signature: %s\n", base64.StdEncoding.EncodeToString(sig.Value))
			return nil
		},
	}
	verifyCmd = &cobra.Command{
		Use:   "verify [data] [signature]",
		Short: "Verifies a base64 encoded signature over data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyType, alg, err := keyFlags()
			if err != nil {
				return err
			}
			sig, err := base64.StdEncoding.DecodeString(args[1])
			if err != nil {
				return fmt.Errorf("signature must be base64: %w", err)
			}

			ctx, cancel := callContext(cmd)
			defer cancel()

			ok, err := signingClient.Verify(ctx, viper.GetString("key-id"), keyType, alg, []byte(args[0]), sig)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("signature is invalid")
			}
			fmt.Println("signature is valid")
			return nil
		},
	}

	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Manages the keys of the server",
	}
	keysListCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the keys, optionally filtered by --key-type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keyType, err := signer.ParseKeyType(viper.GetString("key-type"))
			if err != nil {
				return err
			}

			ctx, cancel := callContext(cmd)
			defer cancel()

			keys, err := signingClient.ListKeys(ctx, keyType, viper.GetBool("active-only"))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tACTIVE\tCREATED")
			for _, k := range keys {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", k.KeyID, k.KeyType, k.Active, k.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	keysGenerateCmd = &cobra.Command{
		Use:   "generate [id]",
		Short: "Generates a key of --key-type (a UUID is used when id is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyType, err := signer.ParseKeyType(viper.GetString("key-type"))
			if err != nil {
				return err
			}
			if keyType == signer.KeyTypeUnspecified {
				return fmt.Errorf("--key-type is required")
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			ctx, cancel := callContext(cmd)
			defer cancel()

			info, _, err := signingClient.GenerateKey(ctx, id, keyType)
			if err != nil {
				return err
			}
			fmt.Printf("generated %s key %s\n", info.KeyType, info.KeyID)
			return nil
		},
	}
	keysDeleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callContext(cmd)
			defer cancel()

			if err := signingClient.DeleteKey(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	keysPublicCmd = &cobra.Command{
		Use:   "public [id]",
		Short: "Prints the PEM encoded public key (the default key of --key-type when id is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyType, err := signer.ParseKeyType(viper.GetString("key-type"))
			if err != nil {
				return err
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}

			ctx, cancel := callContext(cmd)
			defer cancel()

			der, err := signingClient.PublicKey(ctx, id, keyType)
			if err != nil {
				return err
			}
			return pem.Encode(os.Stdout, &pem.Block{Type: "PUBLIC KEY", Bytes: der})
		},
	}
)

func init() {
	for _, c := range []*cobra.Command{signCmd, verifyCmd} {
		key := "key-id"
		c.Flags().String(key, "", util.WrapString("ID of the key (empty = default key of --key-type)"))
		key = "key-type"
		c.Flags().String(key, "ecc-p256", util.WrapString("Key type (rsa-2048, rsa-3072, rsa-4096, ecc-p256, ecc-p384, ecc-p521)"))
		key = "algorithm"
		c.Flags().String(key, "", util.WrapString("Signing algorithm, e.g. ecdsa-sha256, rsa-pss-sha256, rsa-pkcs1-sha256 (empty = default of the key type)"))
	}

	keysCmd.PersistentFlags().String("key-type", "", util.WrapString("Key type (rsa-2048, rsa-3072, rsa-4096, ecc-p256, ecc-p384, ecc-p521)"))
	keysListCmd.Flags().Bool("active-only", false, util.WrapString("Only list active keys"))

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysDeleteCmd)
	keysCmd.AddCommand(keysPublicCmd)
}

// keyFlags parses --key-type and --algorithm
func keyFlags() (signer.KeyType, signer.Algorithm, error) {
	keyType, err := signer.ParseKeyType(viper.GetString("key-type"))
	if err != nil {
		return 0, 0, err
	}
	alg, err := signer.ParseAlgorithm(viper.GetString("algorithm"))
	if err != nil {
		return 0, 0, err
	}
	return keyType, alg, nil
}
