package issuer

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	tchttp "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/http"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"

	"github.com/CliForge/dbauth/pkg/dbauth/errcode"
	"github.com/CliForge/dbauth/pkg/dbauth/types"
)

var logger = loggo.GetLogger("dbauth.issuer")

const (
	// DefaultEndpoint is the CAM API host.
	DefaultEndpoint = "cam.tencentcloudapi.com"
	// DefaultTimeout bounds one issuance request.
	DefaultTimeout = 30 * time.Second

	action     = "BuildDataFlowAuthToken"
	apiVersion = "2019-01-16"
	service    = "cam"

	// clientErrorPrefix marks failures raised by the SDK itself rather than
	// returned by the API: network, status and decoding errors.
	clientErrorPrefix = "ClientError."
)

// CAMConfig configures a CAMClient.
type CAMConfig struct {
	// Endpoint is the API host or base URL. Defaults to DefaultEndpoint.
	Endpoint string
	// Timeout bounds one request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Transport sends the requests. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// CAMClient requests auth tokens from the CAM BuildDataFlowAuthToken API
// through the Tencent Cloud SDK common client, which signs requests with
// TC3-HMAC-SHA256.
type CAMClient struct {
	config CAMConfig
}

// NewCAMClient creates a CAM issuer.
func NewCAMClient(config CAMConfig) *CAMClient {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Transport == nil {
		config.Transport = http.DefaultTransport
	}
	return &CAMClient{config: config}
}

type buildDataFlowAuthTokenRequest struct {
	*tchttp.BaseRequest

	ResourceID      string `json:"ResourceId" name:"ResourceId"`
	ResourceRegion  string `json:"ResourceRegion" name:"ResourceRegion"`
	ResourceAccount string `json:"ResourceAccount" name:"ResourceAccount"`
}

func newBuildDataFlowAuthTokenRequest(req *types.Request) *buildDataFlowAuthTokenRequest {
	r := &buildDataFlowAuthTokenRequest{
		BaseRequest:     &tchttp.BaseRequest{},
		ResourceID:      req.InstanceID,
		ResourceRegion:  req.Region,
		ResourceAccount: req.UserName,
	}
	r.Init().WithApiInfo(service, apiVersion, action)
	return r
}

type buildDataFlowAuthTokenResponse struct {
	*tchttp.BaseResponse

	Response *struct {
		Credentials *struct {
			Token            string `json:"Token"`
			CurrentTime      int64  `json:"CurrentTime"`
			NextRotationTime int64  `json:"NextRotationTime"`
		} `json:"Credentials"`
		RequestID string `json:"RequestId"`
	} `json:"Response"`
}

// BuildDataFlowAuthToken requests an auth token for req.
func (c *CAMClient) BuildDataFlowAuthToken(ctx context.Context, req *types.Request) (*Response, error) {
	if req == nil || req.Credential == nil {
		return nil, errcode.New(errcode.SecretNotExist, "The credential is invalid.")
	}

	endpoint, timeout := c.config.Endpoint, c.config.Timeout
	if p := req.ClientProfile; p != nil {
		if p.Endpoint != "" {
			endpoint = p.Endpoint
		}
		if p.Timeout > 0 {
			timeout = p.Timeout
		}
	}
	scheme, host, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, errcode.Newf(errcode.InternalError, "invalid endpoint %q: %v", endpoint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cpf := profile.NewClientProfile()
	cpf.Language = "en-US"
	cpf.HttpProfile.Scheme = scheme
	cpf.HttpProfile.Endpoint = host
	cpf.HttpProfile.ReqTimeout = int(math.Ceil(timeout.Seconds()))

	cred := req.Credential
	client := (&common.Client{}).
		Init(req.Region).
		WithCredential(common.NewTokenCredential(cred.SecretID, cred.SecretKey, cred.Token)).
		WithProfile(cpf).
		WithHttpTransport(contextTransport{ctx: ctx, base: c.config.Transport})

	logger.Debugf("requesting auth token from %s", host)
	resp := &buildDataFlowAuthTokenResponse{BaseResponse: &tchttp.BaseResponse{}}
	if err := client.Send(newBuildDataFlowAuthTokenRequest(req), resp); err != nil {
		return nil, fromSDKError(err)
	}

	if resp.Response == nil {
		return nil, errcode.New(errcode.InternalError, "Failed to request AuthToken, response is null")
	}
	requestID := resp.Response.RequestID
	creds := resp.Response.Credentials
	if creds == nil {
		return nil, errcode.New(errcode.InternalError, "Failed to request AuthToken, tokenResponse is null").WithRequestID(requestID)
	}

	return &Response{
		Token:            creds.Token,
		CurrentTime:      creds.CurrentTime,
		NextRotationTime: creds.NextRotationTime,
		RequestID:        requestID,
	}, nil
}

// fromSDKError maps SDK errors to classified errors. API error codes are kept;
// failures raised inside the SDK become InternalError.
func fromSDKError(err error) error {
	var sdkErr *tcerrors.TencentCloudSDKError
	if !errors.As(err, &sdkErr) {
		return errcode.Newf(errcode.InternalError, "Failed to request AuthToken, error: %v", err)
	}
	if sdkErr.Code == "" || strings.HasPrefix(sdkErr.Code, clientErrorPrefix) {
		return errcode.Newf(errcode.InternalError, "Failed to request AuthToken, %s: %s",
			sdkErr.Code, sdkErr.Message).WithRequestID(sdkErr.RequestId)
	}
	return errcode.New(sdkErr.Code, sdkErr.Message).WithRequestID(sdkErr.RequestId)
}

// splitEndpoint accepts either a bare host or a URL without a path.
func splitEndpoint(endpoint string) (scheme, host string, err error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", errors.New("missing host")
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", errors.Errorf("unsupported path %q", u.Path)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", "", errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.Scheme, u.Host, nil
}

// contextTransport binds every request it sends to ctx. The SDK client builds
// its requests without a context.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
