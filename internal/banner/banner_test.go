package banner_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/taskpipe/internal/banner"
)

func TestRender(testInstance *testing.T) {
	require.Equal(testInstance, "/*! storefront */\n", banner.Render("storefront"))
	require.Equal(testInstance, "/*! storefront */\n", banner.Render("  storefront "))
}

func TestPrepend(testInstance *testing.T) {
	testCases := []struct {
		name     string
		content  string
		expected string
	}{
		{
			name:     "plain_stylesheet",
			content:  "body{color:red}",
			expected: "/*! storefront */\nbody{color:red}",
		},
		{
			name:     "script",
			content:  "function add(e,t){return e+t}",
			expected: "/*! storefront */\nfunction add(e,t){return e+t}",
		},
		{
			name:     "byte_order_mark",
			content:  "\xEF\xBB\xBFbody{content:\"é\"}",
			expected: "\xEF\xBB\xBF/*! storefront */\nbody{content:\"é\"}",
		},
		{
			name:     "charset_rule_on_own_line",
			content:  "@charset \"UTF-8\";\nbody {\n  content: \"é\";\n}\n",
			expected: "@charset \"UTF-8\";\n/*! storefront */\nbody {\n  content: \"é\";\n}\n",
		},
		{
			name:     "charset_rule_inline",
			content:  "@charset \"UTF-8\";body{content:\"é\"}",
			expected: "@charset \"UTF-8\";\n/*! storefront */\nbody{content:\"é\"}",
		},
		{
			name:     "byte_order_mark_and_charset_rule",
			content:  "\xEF\xBB\xBF@charset \"UTF-8\";\r\nbody{}",
			expected: "\xEF\xBB\xBF@charset \"UTF-8\";\r\n/*! storefront */\nbody{}",
		},
		{
			name:     "unterminated_charset_rule",
			content:  "@charset \"UTF-8\"",
			expected: "/*! storefront */\n@charset \"UTF-8\"",
		},
		{
			name:     "empty",
			content:  "",
			expected: "/*! storefront */\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			content := []byte(testCase.content)
			stamped := banner.Prepend("storefront", content)

			require.Equal(testInstance, testCase.expected, string(stamped))
			require.Equal(testInstance, testCase.content, string(content))
		})
	}
}
