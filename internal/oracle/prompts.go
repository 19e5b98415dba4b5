package oracle

import (
	"fmt"
	"strings"
)

// unifiedAnalysisPromptEN/JA mirror the original system's two-phase
// "analyze, then decide NEW/UPDATE/KEPT against retrieved candidates"
// prompt, collapsed into the single round-trip of SPEC_FULL.md §4.F.
const unifiedAnalysisPromptEN = `
Analyze this interaction and decide whether it should be stored in or used to update the knowledge base.

1. Analysis phase: extract the structural knowledge (entities, rules, processes) from the interaction.
   Identify specific details as well as the abstract problem class they belong to.

2. Integration phase: compare the extracted knowledge against the "similar existing knowledge" below
   and decide the action.

User: %s
AI: %s

Similar existing knowledge:
%s

Output JSON only:
{
    "should_store": true/false,
    "action": "NEW" | "UPDATE" | "KEPT",
    "target_doc_id": null | <integer id>,
    "analysis": "**Specific Model**:\n[...]\n\n**Generalization**:\n[...]",
    "entities": ["entity1", "entity2"],
    "problem_class": "problem class",
    "rationale": "brief reason for the decision"
}
`

const unifiedAnalysisPromptJA = `
このやり取りを分析し、知識ベースに保存または更新すべきか判断してください。
出力は必ず日本語（Japanese）で行ってください。

1. 分析フェーズ: やり取りから重要な構造的知識（エンティティ、ルール、プロセス）を抽出してください。
   具体的な詳細だけでなく、抽象的な問題クラスも特定してください。

2. 統合判定フェーズ: 抽出した知識と「類似する既存の知識」を比較し、アクションを決定してください。

ユーザー: %s
AI: %s

類似する既存の知識:
%s

Output JSON only:
{
    "should_store": true/false,
    "action": "NEW" | "UPDATE" | "KEPT",
    "target_doc_id": null | <integer id>,
    "analysis": "**具体的なモデル**:\n[...]\n\n**一般化**:\n[...]",
    "entities": ["entity1", "entity2"],
    "problem_class": "problem_class",
    "rationale": "決定の理由"
}
`

// knowledgeModelPromptEN/JA structure raw analysis text into a standalone
// domain-knowledge entry, grounded on background.py's
// _structure_as_knowledge_model step (SPEC_FULL.md §3.1). The original
// referenced an LTM_KNOWLEDGE_MODEL_PROMPT constant that is not defined
// anywhere in the source tree the distillation drew from; this template
// reconstructs its evident intent from the context string it's formatted
// against, asking for the Entities / State Variables / Actions /
// Constraints Markdown sections of SPEC_FULL.md §3.1.
const knowledgeModelPromptEN = `
Rewrite the analysis below as a single, self-contained knowledge base entry.
Keep it precise and reusable independent of the original conversation.
Structure it as Markdown with these sections: Entities, State Variables, Actions, Constraints.

%s

Output the structured entry as plain text, not JSON.
`

const knowledgeModelPromptJA = `
以下の分析を、独立して再利用可能な単一の知識ベースエントリとして書き直してください。
元の会話から切り離しても通用するよう、正確かつ簡潔にまとめてください。
Entities、State Variables、Actions、Constraints の各セクションを持つMarkdown形式で構成してください。

%s

構造化されたエントリをプレーンテキストで出力してください（JSON形式ではありません）。
`

// noExistingDocsPlaceholder is substituted when no similar documents were
// found. The original system embeds the literal string "None" here; kept
// verbatim rather than a friendlier phrase so prompt behavior matches what
// the oracle model was implicitly tuned against.
const noExistingDocsPlaceholder = "None"

// BuildUnifiedAnalysisPrompt assembles the unified analysis prompt for the
// given interaction and candidate documents, selecting the English or
// Japanese template per lang ("en" or "ja"; anything else falls back to en).
func BuildUnifiedAnalysisPrompt(lang, userInput, agentOutput string, existingDocs []string) string {
	template := unifiedAnalysisPromptEN
	if lang == "ja" {
		template = unifiedAnalysisPromptJA
	}
	return fmt.Sprintf(template, userInput, agentOutput, FormatExistingDocs(existingDocs))
}

// FormatExistingDocs renders candidate documents for embedding into a
// prompt, joining them with a separator and falling back to the literal
// "None" placeholder when there are no candidates.
func FormatExistingDocs(docs []string) string {
	if len(docs) == 0 {
		return noExistingDocsPlaceholder
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, d)
	}
	return strings.Join(parts, "\n---\n")
}

// BuildKnowledgeModelPrompt assembles the structuring-step prompt from a
// user/agent/raw-analysis context block, matching background.py's
// `context = f"User Input: ...\n\nAgent Response: ...\n\nAnalysis:\n..."` shape.
func BuildKnowledgeModelPrompt(lang, userInput, agentOutput, rawAnalysis string) string {
	context := fmt.Sprintf("User Input: %s\n\nAgent Response: %s\n\nAnalysis:\n%s", userInput, agentOutput, rawAnalysis)
	template := knowledgeModelPromptEN
	if lang == "ja" {
		template = knowledgeModelPromptJA
	}
	return fmt.Sprintf(template, context)
}
