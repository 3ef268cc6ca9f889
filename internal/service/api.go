package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/foliodesk/internal/calculator"
	"github.com/mmynk/foliodesk/internal/models"
	"github.com/mmynk/foliodesk/internal/settlement"
	"github.com/mmynk/foliodesk/internal/storage"
)

const (
	// FolioServiceName is the fully-qualified name of the FolioService service.
	FolioServiceName = "foliodesk.v1.FolioService"
	// CheckoutServiceName is the fully-qualified name of the CheckoutService service.
	CheckoutServiceName = "foliodesk.v1.CheckoutService"
)

// Procedure paths. These are mounted under the service path returned by the
// handler constructors.
const (
	FolioServiceOpenFolioProcedure           = "/foliodesk.v1.FolioService/OpenFolio"
	FolioServicePostChargeProcedure          = "/foliodesk.v1.FolioService/PostCharge"
	FolioServiceGetFolioProcedure            = "/foliodesk.v1.FolioService/GetFolio"
	FolioServicePreviewDistributionProcedure = "/foliodesk.v1.FolioService/PreviewDistribution"
	FolioServiceDistributeProcedure          = "/foliodesk.v1.FolioService/Distribute"
	FolioServiceRegisterPaymentProcedure     = "/foliodesk.v1.FolioService/RegisterPayment"
	FolioServiceGetHistoryProcedure          = "/foliodesk.v1.FolioService/GetHistory"

	CheckoutServiceValidateCheckoutProcedure = "/foliodesk.v1.CheckoutService/ValidateCheckout"
	CheckoutServiceCheckoutProcedure         = "/foliodesk.v1.CheckoutService/Checkout"
)

// OpenFolioRequest opens a folio at check-in.
type OpenFolioRequest = storage.OpenFolioRequest

// PostChargeRequest posts an unassigned charge.
type PostChargeRequest struct {
	FolioID string `json:"folioId"`
	storage.ChargeRequest
}

// GetFolioRequest names a folio.
type GetFolioRequest struct {
	FolioID string `json:"folioId"`
}

// FolioResponse carries a reconciled folio snapshot.
type FolioResponse struct {
	Folio models.Folio `json:"folio"`
}

// DistributionRequest previews or applies a distribution.
type DistributionRequest struct {
	FolioID string `json:"folioId"`
	models.DistributionRequest
}

// PreviewDistributionResponse carries a plan that has not been applied.
type PreviewDistributionResponse struct {
	Plan *calculator.Plan `json:"plan"`
}

// DistributeResponse is the outcome of an applied distribution.
type DistributeResponse = settlement.DistributionResult

// RegisterPaymentRequest registers a payment.
type RegisterPaymentRequest struct {
	FolioID string `json:"folioId"`
	models.PaymentRequest
}

// RegisterPaymentResponse is the outcome of a registered payment.
type RegisterPaymentResponse = settlement.PaymentResult

// GetHistoryRequest asks for one page of ledger events.
type GetHistoryRequest struct {
	FolioID string           `json:"folioId"`
	Kind    models.EventKind `json:"kind,omitempty"`
	models.PageRequest
}

// GetHistoryResponse is one page of ledger events.
type GetHistoryResponse = models.HistoryPage

// ValidateCheckoutResponse is the pre-checkout rule outcome.
type ValidateCheckoutResponse struct {
	Folio      models.Folio                  `json:"folio"`
	Validation calculator.CheckoutValidation `json:"validation"`
	Policy     calculator.CheckoutPolicy     `json:"policy"`
}

// CheckoutRequest runs the checkout for a folio.
type CheckoutRequest struct {
	FolioID string `json:"folioId"`
	settlement.CheckoutRequest
}

// CheckoutResponse is the outcome of a successful checkout.
type CheckoutResponse = settlement.CheckoutResult

func (r *PostChargeRequest) FolioRef() string      { return r.FolioID }
func (r *GetFolioRequest) FolioRef() string        { return r.FolioID }
func (r *DistributionRequest) FolioRef() string    { return r.FolioID }
func (r *RegisterPaymentRequest) FolioRef() string { return r.FolioID }
func (r *GetHistoryRequest) FolioRef() string      { return r.FolioID }
func (r *CheckoutRequest) FolioRef() string        { return r.FolioID }

// FolioServiceHandler is implemented by FolioService.
type FolioServiceHandler interface {
	OpenFolio(context.Context, *connect.Request[OpenFolioRequest]) (*connect.Response[FolioResponse], error)
	PostCharge(context.Context, *connect.Request[PostChargeRequest]) (*connect.Response[FolioResponse], error)
	GetFolio(context.Context, *connect.Request[GetFolioRequest]) (*connect.Response[FolioResponse], error)
	PreviewDistribution(context.Context, *connect.Request[DistributionRequest]) (*connect.Response[PreviewDistributionResponse], error)
	Distribute(context.Context, *connect.Request[DistributionRequest]) (*connect.Response[DistributeResponse], error)
	RegisterPayment(context.Context, *connect.Request[RegisterPaymentRequest]) (*connect.Response[RegisterPaymentResponse], error)
	GetHistory(context.Context, *connect.Request[GetHistoryRequest]) (*connect.Response[GetHistoryResponse], error)
}

// CheckoutServiceHandler is implemented by CheckoutService.
type CheckoutServiceHandler interface {
	ValidateCheckout(context.Context, *connect.Request[GetFolioRequest]) (*connect.Response[ValidateCheckoutResponse], error)
	Checkout(context.Context, *connect.Request[CheckoutRequest]) (*connect.Response[CheckoutResponse], error)
}

// NewFolioServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewFolioServiceHandler(svc FolioServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(FolioServiceOpenFolioProcedure, connect.NewUnaryHandler(FolioServiceOpenFolioProcedure, svc.OpenFolio, opts...))
	mux.Handle(FolioServicePostChargeProcedure, connect.NewUnaryHandler(FolioServicePostChargeProcedure, svc.PostCharge, opts...))
	mux.Handle(FolioServiceGetFolioProcedure, connect.NewUnaryHandler(FolioServiceGetFolioProcedure, svc.GetFolio, opts...))
	mux.Handle(FolioServicePreviewDistributionProcedure, connect.NewUnaryHandler(FolioServicePreviewDistributionProcedure, svc.PreviewDistribution, opts...))
	mux.Handle(FolioServiceDistributeProcedure, connect.NewUnaryHandler(FolioServiceDistributeProcedure, svc.Distribute, opts...))
	mux.Handle(FolioServiceRegisterPaymentProcedure, connect.NewUnaryHandler(FolioServiceRegisterPaymentProcedure, svc.RegisterPayment, opts...))
	mux.Handle(FolioServiceGetHistoryProcedure, connect.NewUnaryHandler(FolioServiceGetHistoryProcedure, svc.GetHistory, opts...))
	return "/" + FolioServiceName + "/", mux
}

// NewCheckoutServiceHandler builds an HTTP handler from the service implementation.
func NewCheckoutServiceHandler(svc CheckoutServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(CheckoutServiceValidateCheckoutProcedure, connect.NewUnaryHandler(CheckoutServiceValidateCheckoutProcedure, svc.ValidateCheckout, opts...))
	mux.Handle(CheckoutServiceCheckoutProcedure, connect.NewUnaryHandler(CheckoutServiceCheckoutProcedure, svc.Checkout, opts...))
	return "/" + CheckoutServiceName + "/", mux
}

func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
}

// FolioServiceClient is a client for the FolioService service.
type FolioServiceClient struct {
	openFolio           *connect.Client[OpenFolioRequest, FolioResponse]
	postCharge          *connect.Client[PostChargeRequest, FolioResponse]
	getFolio            *connect.Client[GetFolioRequest, FolioResponse]
	previewDistribution *connect.Client[DistributionRequest, PreviewDistributionResponse]
	distribute          *connect.Client[DistributionRequest, DistributeResponse]
	registerPayment     *connect.Client[RegisterPaymentRequest, RegisterPaymentResponse]
	getHistory          *connect.Client[GetHistoryRequest, GetHistoryResponse]
}

// NewFolioServiceClient constructs a client for the FolioService service.
// baseURL is the server root, e.g. http://localhost:8080.
func NewFolioServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *FolioServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &FolioServiceClient{
		openFolio:           connect.NewClient[OpenFolioRequest, FolioResponse](httpClient, baseURL+FolioServiceOpenFolioProcedure, opts...),
		postCharge:          connect.NewClient[PostChargeRequest, FolioResponse](httpClient, baseURL+FolioServicePostChargeProcedure, opts...),
		getFolio:            connect.NewClient[GetFolioRequest, FolioResponse](httpClient, baseURL+FolioServiceGetFolioProcedure, opts...),
		previewDistribution: connect.NewClient[DistributionRequest, PreviewDistributionResponse](httpClient, baseURL+FolioServicePreviewDistributionProcedure, opts...),
		distribute:          connect.NewClient[DistributionRequest, DistributeResponse](httpClient, baseURL+FolioServiceDistributeProcedure, opts...),
		registerPayment:     connect.NewClient[RegisterPaymentRequest, RegisterPaymentResponse](httpClient, baseURL+FolioServiceRegisterPaymentProcedure, opts...),
		getHistory:          connect.NewClient[GetHistoryRequest, GetHistoryResponse](httpClient, baseURL+FolioServiceGetHistoryProcedure, opts...),
	}
}

func (c *FolioServiceClient) OpenFolio(ctx context.Context, req *connect.Request[OpenFolioRequest]) (*connect.Response[FolioResponse], error) {
	return c.openFolio.CallUnary(ctx, req)
}

func (c *FolioServiceClient) PostCharge(ctx context.Context, req *connect.Request[PostChargeRequest]) (*connect.Response[FolioResponse], error) {
	return c.postCharge.CallUnary(ctx, req)
}

func (c *FolioServiceClient) GetFolio(ctx context.Context, req *connect.Request[GetFolioRequest]) (*connect.Response[FolioResponse], error) {
	return c.getFolio.CallUnary(ctx, req)
}

func (c *FolioServiceClient) PreviewDistribution(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[PreviewDistributionResponse], error) {
	return c.previewDistribution.CallUnary(ctx, req)
}

func (c *FolioServiceClient) Distribute(ctx context.Context, req *connect.Request[DistributionRequest]) (*connect.Response[DistributeResponse], error) {
	return c.distribute.CallUnary(ctx, req)
}

func (c *FolioServiceClient) RegisterPayment(ctx context.Context, req *connect.Request[RegisterPaymentRequest]) (*connect.Response[RegisterPaymentResponse], error) {
	return c.registerPayment.CallUnary(ctx, req)
}

func (c *FolioServiceClient) GetHistory(ctx context.Context, req *connect.Request[GetHistoryRequest]) (*connect.Response[GetHistoryResponse], error) {
	return c.getHistory.CallUnary(ctx, req)
}

// CheckoutServiceClient is a client for the CheckoutService service.
type CheckoutServiceClient struct {
	validateCheckout *connect.Client[GetFolioRequest, ValidateCheckoutResponse]
	checkout         *connect.Client[CheckoutRequest, CheckoutResponse]
}

// NewCheckoutServiceClient constructs a client for the CheckoutService service.
func NewCheckoutServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CheckoutServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOptions(opts)
	return &CheckoutServiceClient{
		validateCheckout: connect.NewClient[GetFolioRequest, ValidateCheckoutResponse](httpClient, baseURL+CheckoutServiceValidateCheckoutProcedure, opts...),
		checkout:         connect.NewClient[CheckoutRequest, CheckoutResponse](httpClient, baseURL+CheckoutServiceCheckoutProcedure, opts...),
	}
}

func (c *CheckoutServiceClient) ValidateCheckout(ctx context.Context, req *connect.Request[GetFolioRequest]) (*connect.Response[ValidateCheckoutResponse], error) {
	return c.validateCheckout.CallUnary(ctx, req)
}

func (c *CheckoutServiceClient) Checkout(ctx context.Context, req *connect.Request[CheckoutRequest]) (*connect.Response[CheckoutResponse], error) {
	return c.checkout.CallUnary(ctx, req)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
}
