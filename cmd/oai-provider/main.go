// oai-provider serves an OAI-PMH endpoint over the Melinda union
// catalog replica in Postgres.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/encoding/json"
	"github.com/sirupsen/logrus"

	provider "github.com/NatLibFi/melinda-oai-pmh-provider-sub000"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/catalog"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/endpoint"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/harvest"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/marc"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/pmh"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/token"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/transform"
)

var docs = strings.TrimLeft(`
# oai-provider - OAI-PMH endpoint for the union catalog

Serves the six protocol verbs over a catalog replica in Postgres.
Resumption tokens are encrypted and self expiring; the key lives in a
file and is generated on first start if absent.

## run

$ oai-provider -dsn postgres://oai@localhost/melinda -realm bib

## sets

Sets come from a JSON file, an array of objects:

	[{"spec": "fennica", "name": "Fennica",
	  "filters": ["collection:fennica"]}]

## flags

`, "\n")

var defaultSecretFile = path.Join(xdg.ConfigHome, "oai-provider", "token.key")

var (
	listenAddr  = flag.String("listen", ":8080", "listen address")
	dsn         = flag.String("dsn", "", "postgres connection string")
	realmName   = flag.String("realm", "bib", "target realm (bib, aut)")
	repoName    = flag.String("name", "Melinda OAI-PMH provider", "repository name for Identify")
	baseURL     = flag.String("base-url", "https://melinda.kansalliskirjasto.fi/oai", "advertised base URL")
	adminEmail  = flag.String("admin-email", "melinda-posti@helsinki.fi", "admin email for Identify")
	idPrefix    = flag.String("id-prefix", "oai:melinda.kansalliskirjasto.fi/", "public identifier namespace prefix")
	setsFile    = flag.String("sets", "", "path to the sets JSON file")
	secretFile  = flag.String("secret-file", defaultSecretFile, "token key file, 32 bytes")
	tokenTTL    = flag.Duration("token-ttl", 10*time.Minute, "resumption token lifetime")
	pageSize    = flag.Int("page-size", 50, "records per list response")
	privileged  = flag.Bool("privileged", false, "serve administrative fields to callers")
	lenient     = flag.Bool("lenient", false, "tolerate framing defects in stored records")
	showVersion = flag.Bool("version", false, "show version")
)

// knownFormats across all realms; the realm decides which of these it
// actually disseminates.
var knownFormats = map[string]pmh.Format{
	"melinda_marc": {
		Prefix:    "melinda_marc",
		Schema:    "https://melinda.kansalliskirjasto.fi/schema/melinda_marc.xsd",
		Namespace: "https://melinda.kansalliskirjasto.fi/ns/melinda_marc",
	},
	"marc21": {
		Prefix:    "marc21",
		Schema:    "https://www.loc.gov/standards/marcxml/schema/MARC21slim.xsd",
		Namespace: "http://www.loc.gov/MARC21/slim",
	},
	"oai_dc": {
		Prefix:    "oai_dc",
		Schema:    "http://www.openarchives.org/OAI/2.0/oai_dc.xsd",
		Namespace: "http://www.openarchives.org/OAI/2.0/oai_dc/",
	},
}

func main() {
	flag.Usage = func() {
		io.WriteString(os.Stderr, docs)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(provider.Version)
		os.Exit(0)
	}
	log := logrus.New()
	realm, ok := pmh.Realms[*realmName]
	if !ok {
		log.Fatalf("unknown realm: %s", *realmName)
	}
	if *dsn == "" {
		log.Fatal("missing -dsn")
	}
	secret, err := loadOrCreateSecret(*secretFile)
	if err != nil {
		log.Fatalf("token key: %v", err)
	}
	codec, err := token.NewCodec(secret, *tokenTTL)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	sets, err := loadSets(*setsFile)
	if err != nil {
		log.Fatalf("sets: %v", err)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, *dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	mode := marc.DecodeStrict
	if *lenient {
		mode = marc.DecodeLenient
	}
	store := catalog.NewPgStore(pool)
	resolver := harvest.NewSetResolver(store, sets)
	dispatcher := &endpoint.Dispatcher{
		Validator: &pmh.Validator{
			Realm:    realm,
			Known:    knownFormats,
			Sets:     resolver.Specs(),
			IDPrefix: *idPrefix,
			Codec:    codec,
		},
		Engine: &harvest.Engine{
			Store:    store,
			Sets:     resolver,
			PageSize: *pageSize,
		},
		Store: store,
		Transformer: &transform.Transformer{
			Realm:        realm,
			OriginPrefix: "(FIN01)",
			PublicPrefix: "(FI-MELINDA)",
			OrgCode:      "FI-MELINDA",
			NativePrefix: "melinda_marc",
		},
		Codec: codec,
		Config: endpoint.Config{
			RepositoryName: *repoName,
			BaseURL:        *baseURL,
			AdminEmail:     *adminEmail,
			IDPrefix:       *idPrefix,
			Privileged:     *privileged,
			Mode:           mode,
		},
	}
	log.WithFields(logrus.Fields{
		"addr":  *listenAddr,
		"realm": realm.Name,
		"sets":  len(sets),
	}).Info("starting")
	server := &http.Server{
		Addr:         *listenAddr,
		Handler:      endpoint.NewHandler(dispatcher, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

// loadOrCreateSecret reads the token key, generating a fresh one on
// first start. Rotating the key invalidates outstanding tokens, which
// harvesters recover from by restarting their list request.
func loadOrCreateSecret(filename string) ([]byte, error) {
	b, err := os.ReadFile(filename)
	if err == nil {
		return b, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	b = make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(path.Dir(filename), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filename, b, 0600); err != nil {
		return nil, err
	}
	return b, nil
}

func loadSets(filename string) ([]pmh.Set, error) {
	if filename == "" {
		return nil, nil
	}
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var sets []pmh.Set
	if err := json.Unmarshal(b, &sets); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return sets, nil
}
