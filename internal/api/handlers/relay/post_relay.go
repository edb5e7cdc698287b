package relay

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/near/borsh-go"
	"github.com/rs/zerolog/log"

	"github/fastauth/go-migrate/internal/api"
	"github/fastauth/go-migrate/internal/api/httperrors"
	"github/fastauth/go-migrate/internal/chain"
)

// PostRelayPayload 请求体：borsh 序列化并 base64 编码的已签名元交易
type PostRelayPayload struct {
	SignedDelegateAction string `json:"signed_delegate_action"`
}

// PostRelayResponse 响应体
type PostRelayResponse struct {
	TransactionHash string `json:"transaction_hash"`
	Succeeded       bool   `json:"succeeded"`
	Failure         any    `json:"failure,omitempty"`
}

func PostRelayRoute(s *api.Server) *echo.Route {
	return s.Router.APIV1Relay.POST("", postRelayHandler(s))
}

func postRelayHandler(s *api.Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		var body PostRelayPayload
		if err := c.Bind(&body); err != nil {
			return httperrors.ErrBadRequestInvalidBody.Send(c)
		}

		raw, err := base64.StdEncoding.DecodeString(body.SignedDelegateAction)
		if err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeInvalidBody, "Signed delegate action is not valid base64.").Send(c)
		}

		var signed chain.SignedDelegateAction
		if err := borsh.Deserialize(&signed, raw); err != nil {
			return httperrors.NewHTTPError(http.StatusBadRequest, httperrors.TypeInvalidBody, "Signed delegate action could not be deserialized.").Send(c)
		}

		outcome, err := s.Relayer.RelayDelegateAction(ctx, &signed)
		if err != nil {
			log.Error().Err(err).Str("sender_id", signed.DelegateAction.SenderID).Msg("Failed to relay delegate action")
			return httperrors.NewHTTPError(http.StatusBadGateway, httperrors.TypeChainFailure, "Failed to relay delegate action.").WithDetail(err.Error()).Send(c)
		}

		response := PostRelayResponse{
			TransactionHash: outcome.TransactionHash,
			Succeeded:       !outcome.Status.Failed(),
		}
		if outcome.Status.Failed() {
			response.Failure = outcome.Status.Failure
		}

		return c.JSON(http.StatusOK, response)
	}
}
