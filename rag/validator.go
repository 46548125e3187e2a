package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ayxsth/cloudymate/internal/logger"
)

const (
	DefaultSampleLength  = 3000
	DefaultExcerptLength = 2000
	// MinDocumentLength is the shortest document text worth classifying.
	MinDocumentLength = 100

	StrictKeywordThreshold  = 5
	LenientKeywordThreshold = 1
)

// AWSKeywords are matched case-insensitively on word boundaries.
var AWSKeywords = []string{
	"aws", "amazon web services", "ec2", "s3", "lambda", "cloudformation",
	"cloudfront", "rds", "dynamodb", "ecs", "eks", "fargate", "elasticache",
	"route53", "route 53", "vpc", "iam", "cloudwatch", "sns", "sqs", "kinesis",
	"redshift", "aurora", "bedrock", "sagemaker", "elastic beanstalk",
	"serverless", "cloudtrail", "api gateway", "step functions", "ebs", "efs",
	"glacier", "athena", "cognito", "kms", "eventbridge", "lightsail",
	"well-architected", "opensearch",
}

const classifierPrompt = `You are a content classifier. Your task is to determine if a document is related to Amazon Web Services (AWS).

Analyze the following text excerpt and determine if it discusses AWS topics such as:
- AWS services (EC2, S3, Lambda, RDS, CloudFront, etc.)
- Cloud computing concepts in AWS context
- AWS architecture, best practices, or configurations
- AWS pricing, billing, or cost management
- AWS security, IAM, or compliance
- AWS development tools, SDKs, or APIs
- AWS certifications or training materials
- Any other AWS-related technical content

TEXT EXCERPT:
%s

INSTRUCTIONS:
1. Respond with "YES" if the text is clearly about AWS topics, followed by a short reason
2. Respond with "NO" if the text is not about AWS, followed by a short reason
3. Be strict - the text should have substantial AWS-related content

Your response (YES or NO):`

// Classifier is one tier of the validation chain. A classifier that cannot
// reach a verdict returns decided=false and the next tier is asked.
type Classifier interface {
	Classify(ctx context.Context, sample string, strict bool) (v Verdict, decided bool, err error)
}

// KeywordClassifier counts distinct AWS terms in the sample.
type KeywordClassifier struct {
	patterns         []*regexp.Regexp
	StrictThreshold  int
	LenientThreshold int
}

func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	k := &KeywordClassifier{
		StrictThreshold:  StrictKeywordThreshold,
		LenientThreshold: LenientKeywordThreshold,
	}
	for _, kw := range keywords {
		k.patterns = append(k.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(kw))+`\b`))
	}
	return k
}

// Matches returns how many distinct keywords occur in text.
func (k *KeywordClassifier) Matches(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, p := range k.patterns {
		if p.MatchString(lower) {
			n++
		}
	}
	return n
}

func (k *KeywordClassifier) Classify(ctx context.Context, sample string, strict bool) (Verdict, bool, error) {
	n := k.Matches(sample)
	if n == 0 {
		return Verdict{Reason: "Document does not contain any AWS-related keywords or terminology."}, true, nil
	}
	threshold := k.LenientThreshold
	if strict {
		threshold = k.StrictThreshold
	}
	if n >= threshold {
		return Verdict{
			Valid:  true,
			Reason: fmt.Sprintf("Document contains substantial AWS content (%d AWS-related terms found).", n),
		}, true, nil
	}
	return Verdict{}, false, nil
}

// LLMClassifier asks the generator whether an excerpt is about AWS. It only
// runs in strict mode.
type LLMClassifier struct {
	Generator     Generator
	ExcerptLength int
}

func (c *LLMClassifier) Classify(ctx context.Context, sample string, strict bool) (Verdict, bool, error) {
	if !strict || c.Generator == nil {
		return Verdict{}, false, nil
	}
	excerpt := truncateRunes(sample, c.ExcerptLength)
	gen, err := c.Generator.Generate(ctx, fmt.Sprintf(classifierPrompt, excerpt), nil)
	if err != nil {
		return Verdict{}, false, err
	}
	return parseClassification(gen.Text), true, nil
}

func parseClassification(answer string) Verdict {
	answer = strings.TrimSpace(answer)
	word, rest, _ := strings.Cut(answer, " ")
	word = strings.ToUpper(strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) }))
	rest = strings.TrimLeft(strings.TrimSpace(rest), "-:,. ")

	switch {
	case word == "YES":
		reason := "LLM analysis confirms document is AWS-related."
		if rest != "" {
			reason += " " + rest
		}
		return Verdict{Valid: true, Reason: reason}
	case word == "NO":
		reason := "LLM analysis determined document is not sufficiently AWS-focused."
		if rest != "" {
			reason += " " + rest
		}
		return Verdict{Reason: reason}
	case strings.Contains(strings.ToUpper(answer), "YES"):
		return Verdict{Valid: true, Reason: "LLM analysis confirms document is AWS-related."}
	default:
		return Verdict{Reason: "LLM analysis determined document is not sufficiently AWS-focused."}
	}
}

// Validator runs its classifiers in order; the first one to decide wins.
type Validator struct {
	Classifiers  []Classifier
	SampleLength int
	// FailOpen accepts content when a classifier errors or no tier decides.
	// Only texts with at least one AWS keyword ever get that far.
	FailOpen bool
}

// NewValidator builds the keyword tier followed by the LLM tier. gen may be
// nil, which leaves borderline texts to the FailOpen policy.
func NewValidator(gen Generator, failOpen bool) *Validator {
	return &Validator{
		Classifiers: []Classifier{
			NewKeywordClassifier(AWSKeywords),
			&LLMClassifier{Generator: gen, ExcerptLength: DefaultExcerptLength},
		},
		SampleLength: DefaultSampleLength,
		FailOpen:     failOpen,
	}
}

// Validate classifies text. strict raises the keyword threshold and enables
// the LLM tier.
func (v *Validator) Validate(ctx context.Context, text string, strict bool) Verdict {
	sample := Sample(text, v.SampleLength)
	for _, c := range v.Classifiers {
		verdict, decided, err := c.Classify(ctx, sample, strict)
		if err != nil {
			logger.Warn("Content validation failed: %v", err)
			if v.FailOpen {
				return Verdict{Valid: true, Reason: fmt.Sprintf("Validation check failed, document allowed by default: %v", err)}
			}
			return Verdict{Reason: fmt.Sprintf("Validation check failed, document rejected: %v", err)}
		}
		if decided {
			return verdict
		}
	}
	if v.FailOpen {
		return Verdict{Valid: true, Reason: "Document mentions AWS terminology; no classifier could confirm it, allowed by default."}
	}
	return Verdict{Reason: "Document mentions AWS terminology too rarely to be accepted."}
}

// ValidateDocument applies the upload rules: a minimum length and strict
// classification, with user-facing messages.
func (v *Validator) ValidateDocument(ctx context.Context, text string) Verdict {
	if len([]rune(strings.TrimSpace(text))) < MinDocumentLength {
		return Verdict{Reason: "Document is too short or empty to validate."}
	}
	verdict := v.Validate(ctx, text, true)
	if !verdict.Valid {
		return Verdict{Reason: "This document does not appear to be AWS-related. " +
			"CloudyMate only accepts AWS documentation and technical content. " +
			"Reason: " + verdict.Reason}
	}
	return Verdict{Valid: true, Reason: "Document validated as AWS-related. " + verdict.Reason}
}

// ValidateQuery applies the lenient rules used for questions.
func (v *Validator) ValidateQuery(ctx context.Context, query string) Verdict {
	if strings.TrimSpace(query) == "" {
		return Verdict{Reason: "Query cannot be empty."}
	}
	verdict := v.Validate(ctx, query, false)
	if !verdict.Valid {
		return Verdict{Reason: "CloudyMate only answers questions about AWS. Reason: " + verdict.Reason}
	}
	return verdict
}

// Sample returns text when it fits in n runes, otherwise the first n/2 runes
// and n/2 runes from the middle joined by an ellipsis line.
func Sample(text string, n int) string {
	if n <= 0 {
		n = DefaultSampleLength
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	beginning := runes[:n/2]
	midStart := len(runes)/2 - n/4
	middle := runes[midStart : midStart+n/2]
	return string(beginning) + "\n...\n" + string(middle)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
