package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type mockSSM struct {
	value string
	err   error
	input *ssm.GetParameterInput
}

func (m *mockSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: &m.value},
	}, nil
}

func TestNewRequiresAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetParameter(t *testing.T) {
	api := &mockSSM{value: "secret-value"}
	c, err := New(api)
	require.NoError(t, err)

	got, err := c.GetParameter(context.Background(), " /careline/open-ai-token ")
	require.NoError(t, err)
	require.Equal(t, "secret-value", got)

	require.NotNil(t, api.input)
	require.Equal(t, "/careline/open-ai-token", *api.input.Name)
	require.NotNil(t, api.input.WithDecryption)
	require.True(t, *api.input.WithDecryption)
}

func TestGetParameterEmptyName(t *testing.T) {
	c, err := New(&mockSSM{value: "v"})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "   ")
	require.Error(t, err)
}

func TestGetParameterAPIError(t *testing.T) {
	cause := errors.New("access denied")
	c, err := New(&mockSSM{err: cause})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "/careline/token")
	require.ErrorIs(t, err, cause)
}

func TestGetParameterMissingValue(t *testing.T) {
	c, err := New(&missingValueSSM{})
	require.NoError(t, err)

	_, err = c.GetParameter(context.Background(), "/careline/token")
	require.Error(t, err)
}

type missingValueSSM struct{}

func (*missingValueSSM) GetParameter(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{}}, nil
}
