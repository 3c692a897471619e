package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	passesv1 "github.com/and161185/onepass/internal/api/passesv1"
	"github.com/and161185/onepass/internal/convert"
	"github.com/and161185/onepass/internal/model"
	grpcserver "github.com/and161185/onepass/internal/server/grpc"
)

var errUsage = errors.New("usage")

// passView is the printed form of a pass.
type passView struct {
	Present       bool   `json:"present"`
	UID           string `json:"uid,omitempty"`
	KID           string `json:"kid,omitempty"`
	IssuedAt      string `json:"issued_at,omitempty"`
	Version       int64  `json:"version,omitempty"`
	Status        string `json:"status,omitempty"`
	ValidNow      bool   `json:"valid_now"`
	Signature     string `json:"signature,omitempty"`
	LastScannedAt string `json:"last_scanned_at,omitempty"`
	RevokedAt     string `json:"revoked_at,omitempty"`
}

func epochString(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func optEpochString(sec *int64) string {
	if sec == nil {
		return ""
	}
	return epochString(*sec)
}

func toView(s *structpb.Struct) (passView, error) {
	p, err := convert.FromProtoPass(s)
	if err != nil {
		return passView{}, err
	}
	if p == nil {
		return passView{}, nil
	}
	return passView{
		Present:       true,
		UID:           p.UID,
		KID:           p.KID,
		IssuedAt:      epochString(p.IssuedAt),
		Version:       p.Version,
		Status:        p.StatusText(),
		ValidNow:      p.IsValidNow(),
		Signature:     p.Signature,
		LastScannedAt: optEpochString(p.LastScannedAt),
		RevokedAt:     optEpochString(p.RevokedAt),
	}, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printPass(w io.Writer, s *structpb.Struct) error {
	v, err := toView(s)
	if err != nil {
		return err
	}
	printJSON(w, v)
	return nil
}

// login stores a token: either a given one or one minted locally from the server's signing key.
func login(args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	token := fs.String("token", "", "access token (JWT)")
	key := fs.String("jwt-key", "", "server HS256 key (mint locally, dev)")
	uid := fs.String("uid", "", "subject uid when minting")
	ttl := fs.Duration("ttl", time.Hour, "minted token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *token != "":
		exp, err := tokenExpiry(*token)
		if err != nil {
			return err
		}
		return saveToken(*token, exp)
	case *key != "" && strings.TrimSpace(*uid) != "":
		tok, err := grpcserver.IssueToken([]byte(*key), strings.TrimSpace(*uid), *ttl)
		if err != nil {
			return err
		}
		return saveToken(tok, time.Now().Add(*ttl))
	default:
		return errors.New("need -token, or -jwt-key with -uid")
	}
}

// runCommand executes one pass RPC and prints the result to w.
func runCommand(ctx context.Context, cli *passesv1.PassesClient, cmd string, args []string, w io.Writer) error {
	switch cmd {
	case "pass":
		resp, err := cli.GetPass(ctx)
		if err != nil {
			return err
		}
		return printPass(w, resp)

	case "ensure":
		resp, err := cli.EnsurePass(ctx)
		if err != nil {
			return err
		}
		return printPass(w, resp)

	case "revoke":
		fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
		reason := fs.String("reason", "", "revocation reason")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if strings.TrimSpace(*reason) == "" {
			return errors.New("need -reason")
		}
		if err := cli.RevokePass(ctx, convert.Strings(map[string]string{convert.KeyReason: *reason})); err != nil {
			return err
		}
		fmt.Fprintln(w, "revoked")
		return nil

	case "scan":
		fs := flag.NewFlagSet("scan", flag.ContinueOnError)
		uid := fs.String("uid", "", "pass owner uid")
		sig := fs.String("sig", "", "signature shown on the pass")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *uid == "" || *sig == "" {
			return errors.New("need -uid and -sig")
		}
		req := convert.Strings(map[string]string{model.FieldUID: *uid, model.FieldSignature: *sig})
		if err := cli.MarkScanned(ctx, req); err != nil {
			return err
		}
		fmt.Fprintln(w, "scan recorded")
		return nil

	case "watch":
		stream, err := cli.WatchPass(ctx)
		if err != nil {
			return err
		}
		for {
			msg, err := stream.Recv()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			if err != nil {
				return err
			}
			if err := printPass(w, msg); err != nil {
				return err
			}
		}

	default:
		return errUsage
	}
}
