package apiresponse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponsesCarryCORSHeaders(t *testing.T) {
	for _, resp := range []Response{OK([]int{}), BadRequest("Invalid action"), Failure(1406, "Data too long")} {
		assert.Equal(t, "*", resp.Headers["Access-Control-Allow-Origin"])
		assert.Equal(t, "application/json", resp.Headers["Content-Type"])
		assert.False(t, resp.IsBase64Encoded)
	}
}

func TestFailureEncoding(t *testing.T) {
	b, err := json.Marshal(Failure(2003, "connection refused"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"isBase64Encoded": false,
		"statusCode": 500,
		"headers": {"Content-Type": "application/json", "Access-Control-Allow-Origin": "*"},
		"body": {"error_code": 2003, "error_message": "connection refused"}
	}`, string(b))
}

func TestBadRequestEncoding(t *testing.T) {
	resp := BadRequest("Invalid action")
	assert.Equal(t, 400, resp.StatusCode)
	b, err := json.Marshal(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Invalid action"}`, string(b))
}
