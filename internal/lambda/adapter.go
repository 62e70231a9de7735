// Package lambda runs the progress handler behind API Gateway proxy
// integration on AWS Lambda.
package lambda

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/JakeFAU/game-progress/internal/handler"
)

// Invoker runs one function invocation.
type Invoker interface {
	Handle(ctx context.Context, req handler.Request) (handler.Response, error)
}

// ProxyHandler is the Lambda entrypoint signature for proxy integration.
type ProxyHandler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// NewProxyHandler adapts inv to API Gateway events. Store faults are
// returned to the runtime unchanged.
func NewProxyHandler(inv Invoker) ProxyHandler {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		in, err := FromProxyRequest(req)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		out, err := inv.Handle(ctx, in)
		if err != nil {
			return events.APIGatewayProxyResponse{}, err
		}
		return ToProxyResponse(out), nil
	}
}

// FromProxyRequest maps an API Gateway event onto a handler.Request.
func FromProxyRequest(req events.APIGatewayProxyRequest) (handler.Request, error) {
	body := req.Body
	if req.IsBase64Encoded && body != "" {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return handler.Request{}, fmt.Errorf("decode base64 body: %w", err)
		}
		body = string(raw)
	}
	return handler.Request{
		Method:          req.HTTPMethod,
		QueryParameters: req.QueryStringParameters,
		Body:            body,
	}, nil
}

// ToProxyResponse maps a handler.Response onto an API Gateway response.
func ToProxyResponse(resp handler.Response) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Headers,
		Body:       resp.Body,
	}
}

// Start hands control to the Lambda runtime. It does not return.
func Start(inv Invoker) {
	awslambda.Start(NewProxyHandler(inv))
}
