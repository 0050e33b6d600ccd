package healthreport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"carder-backend/lib/rsautil"
	"carder-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/healthreport")

var (
	LoginFailed     = fmt.Errorf("Failed to login to your account.")
	FragmentMissing = fmt.Errorf("Could not find an expected fragment in the served page.")
	FragmentInvalid = fmt.Errorf("A located page fragment is not valid JSON.")
	NoPriorRecord   = fmt.Errorf("No prior submission record was found. Please submit the report manually once before scheduling it.")
)

// the CAS login page serves this marker; seeing it again in the
// response to the credential POST means the login was bounced back
// to the portal instead of through it
const casPortalMarker = "统一身份认证"

type ClientOptions struct {
	// all default to the production portal when left empty
	LoginUrl  string `json:"login_url"`
	PubKeyUrl string `json:"pubkey_url"`
	ReportUrl string `json:"report_url"`
	SaveUrl   string `json:"save_url"`
}

const (
	defaultLoginUrl  = "https://zjuam.zju.edu.cn/cas/login?service=https%3A%2F%2Fhealthreport.zju.edu.cn%2Fa_zju%2Fapi%2Fsso%2Findex%3Fredirect%3Dhttps%253A%252F%252Fhealthreport.zju.edu.cn%252Fncov%252Fwap%252Fdefault%252Findex"
	defaultPubKeyUrl = "https://zjuam.zju.edu.cn/cas/v2/getPubKey"
	defaultReportUrl = "https://healthreport.zju.edu.cn/ncov/wap/default/index"
	defaultSaveUrl   = "https://healthreport.zju.edu.cn/ncov/wap/default/save"
)

// Client owns one authenticated portal session. It is scoped to a
// single submission run and must not be shared across accounts: the
// cookie jar carries the CAS ticket of whoever logged in last.
type Client struct {
	Http *resty.Client
	opts ClientOptions
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	if opts.LoginUrl == "" {
		opts.LoginUrl = defaultLoginUrl
	}
	if opts.PubKeyUrl == "" {
		opts.PubKeyUrl = defaultPubKeyUrl
	}
	if opts.ReportUrl == "" {
		opts.ReportUrl = defaultReportUrl
	}
	if opts.SaveUrl == "" {
		opts.SaveUrl = defaultSaveUrl
	}

	hosts, err := hostnames(opts.LoginUrl, opts.ReportUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/75.0.3770.100 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(hosts...))
	client.SetTimeout(time.Second * 30)

	telemetry.InstrumentResty(client, "scrapers/healthreport/http")

	return &Client{
		Http: client,
		opts: opts,
	}, nil
}

func hostnames(rawUrls ...string) ([]string, error) {
	var hosts []string
	for _, raw := range rawUrls {
		link, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, link.Hostname())
	}
	return hosts, nil
}

// pulls the one-time `execution` value off the CAS login form, which
// binds the credential POST to the page fetch that preceded it
func (c *Client) fetchExecution(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "fetchExecution")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(c.opts.LoginUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch login page")
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page html")
		return "", err
	}

	execution := doc.Find("input[name=execution]").AttrOr("value", "")
	if execution == "" {
		span.SetStatus(codes.Error, "failed to find execution field")
		return "", fmt.Errorf("%w: input[name=execution]", FragmentMissing)
	}
	return execution, nil
}

func (c *Client) fetchPubKey(ctx context.Context) (modulus, exponent string, err error) {
	ctx, span := tracer.Start(ctx, "fetchPubKey")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(c.opts.PubKeyUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch public key")
		return "", "", err
	}

	var key struct {
		Modulus  string `json:"modulus"`
		Exponent string `json:"exponent"`
	}
	err = json.Unmarshal(res.Body(), &key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to unmarshal public key")
		return "", "", fmt.Errorf("%w: public key: %s", FragmentInvalid, err)
	}
	if key.Modulus == "" || key.Exponent == "" {
		span.SetStatus(codes.Error, "public key is missing modulus or exponent")
		return "", "", fmt.Errorf("%w: public key is missing modulus or exponent", FragmentInvalid)
	}
	return key.Modulus, key.Exponent, nil
}

// Login performs the CAS handshake: fetch the login form, fetch the
// RSA public key, POST the encrypted credentials. The session cookie
// jar holds the resulting ticket. The endpoint signals rejection only
// by serving the login portal again, never by status code.
func (c *Client) Login(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	execution, err := c.fetchExecution(ctx)
	if err != nil {
		return err
	}
	modulus, exponent, err := c.fetchPubKey(ctx)
	if err != nil {
		return err
	}
	ciphertext, err := rsautil.Encrypt(password, exponent, modulus)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encrypt password")
		return err
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username":  username,
			"password":  ciphertext,
			"execution": execution,
			"_eventId":  "submit",
		}).
		Post(c.opts.LoginUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	if strings.Contains(string(res.Body()), casPortalMarker) {
		span.SetStatus(codes.Error, LoginFailed.Error())
		return LoginFailed
	}
	return nil
}

// FetchReportPage returns the raw HTML of the submission page, which
// embeds the prior record and identity fields for Extract to mine.
func (c *Client) FetchReportPage(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchReportPage")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(c.opts.ReportUrl)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch report page")
		return "", err
	}
	return string(res.Body()), nil
}

type SaveResult struct {
	// the server's `e` code as text; "0" means newly accepted, any
	// other observed value means a report already exists for today
	Code    string
	Message string
}

func (r SaveResult) AlreadySubmitted() bool {
	return r.Code != "0"
}

// Save posts a derived record form-encoded to the save endpoint.
// Non-"0" codes are deliberately not treated as errors here: the
// server's error-code contract is undocumented and every non-zero
// value seen in practice means the desired end state already holds.
func (c *Client) Save(ctx context.Context, record Record) (SaveResult, error) {
	ctx, span := tracer.Start(ctx, "client:Save")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(record.FormValues()).
		Post(c.opts.SaveUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to post submission")
		return SaveResult{}, err
	}

	body := map[string]any{}
	decoder := json.NewDecoder(bytes.NewReader(res.Body()))
	decoder.UseNumber()
	err = decoder.Decode(&body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode save response")
		return SaveResult{}, fmt.Errorf("%w: save response: %s", FragmentInvalid, err)
	}

	code, ok := body["e"]
	if !ok {
		span.SetStatus(codes.Error, "save response is missing the e field")
		return SaveResult{}, fmt.Errorf("%w: save response is missing the e field", FragmentInvalid)
	}
	return SaveResult{
		Code:    fmt.Sprint(code),
		Message: fmt.Sprint(body["m"]),
	}, nil
}
