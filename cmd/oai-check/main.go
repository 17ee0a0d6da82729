// oai-check walks a live OAI-PMH endpoint page by page and reports
// counts, for smoke testing a deployment.
package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sethgrid/pester"

	provider "github.com/NatLibFi/melinda-oai-pmh-provider-sub000"
	"github.com/NatLibFi/melinda-oai-pmh-provider-sub000/xflag"
)

var docs = strings.TrimLeft(`
# oai-check - walk an OAI-PMH endpoint

Follows resumption tokens until the list is exhausted or -max pages
have been fetched, then prints the record count.

$ oai-check -e https://melinda.kansalliskirjasto.fi/oai/bib -p marc21
$ oai-check -e http://localhost:8080 -verb ListRecords -set fennica

## flags

`, "\n")

var (
	endpointURL = flag.String("e", "", "endpoint base URL")
	verb        = flag.String("verb", "ListIdentifiers", "list verb to walk (ListIdentifiers, ListRecords)")
	prefix      = flag.String("p", "oai_dc", "metadata prefix")
	set         = flag.String("s", "", "set spec")
	maxPages    = flag.Int("max", 0, "stop after this many pages, 0 for all")
	maxRetries  = flag.Int("r", 3, "max retries per request")
	timeout     = flag.Duration("T", 60*time.Second, "request timeout")
	verbose     = flag.Bool("v", false, "log every page")
	showVersion = flag.Bool("version", false, "show version")

	from  xflag.Date
	until xflag.Date
)

// page is the part of a list response the walk cares about.
type page struct {
	Error struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"error"`
	ListIdentifiers listBody `xml:"ListIdentifiers"`
	ListRecords     listBody `xml:"ListRecords"`
}

type listBody struct {
	Headers []struct {
		Identifier string `xml:"identifier"`
	} `xml:"header"`
	Records []struct {
		Header struct {
			Identifier string `xml:"identifier"`
		} `xml:"header"`
	} `xml:"record"`
	Token struct {
		Value  string `xml:",chardata"`
		Cursor int64  `xml:"cursor,attr"`
	} `xml:"resumptionToken"`
}

func main() {
	flag.Var(&from, "from", "lower datestamp bound")
	flag.Var(&until, "until", "upper datestamp bound")
	flag.Usage = func() {
		io.WriteString(os.Stderr, docs)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Println(provider.Version)
		os.Exit(0)
	}
	if *endpointURL == "" {
		log.Fatal("missing -e endpoint")
	}
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = *maxRetries
	client.RetryOnHTTP429 = true
	client.Timeout = *timeout
	var (
		token string
		pages int
		total int64
		start = time.Now()
	)
	for {
		vs := url.Values{}
		vs.Set("verb", *verb)
		if token != "" {
			vs.Set("resumptionToken", token)
		} else {
			vs.Set("metadataPrefix", *prefix)
			if !from.IsZero() {
				vs.Set("from", from.String())
			}
			if !until.IsZero() {
				vs.Set("until", until.String())
			}
			if *set != "" {
				vs.Set("set", *set)
			}
		}
		p, err := fetch(client, *endpointURL+"?"+vs.Encode())
		if err != nil {
			log.Fatal(err)
		}
		if p.Error.Code != "" {
			log.Fatalf("%s: %s", p.Error.Code, p.Error.Message)
		}
		body := p.ListIdentifiers
		if *verb == "ListRecords" {
			body = p.ListRecords
		}
		n := len(body.Headers) + len(body.Records)
		pages++
		total += int64(n)
		if *verbose {
			log.Printf("page %d: %d records, cursor %d", pages, n, body.Token.Cursor)
		}
		token = strings.TrimSpace(body.Token.Value)
		if token == "" {
			break
		}
		if *maxPages > 0 && pages >= *maxPages {
			break
		}
	}
	log.Printf("%d records over %d pages in %v", total, pages, time.Since(start))
}

func fetch(client *pester.Client, link string) (*page, error) {
	resp, err := client.Get(link)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("got HTTP %d from %s", resp.StatusCode, link)
	}
	var p page
	if err := xml.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", link, err)
	}
	return &p, nil
}
