package codegen

// REX prefix bits
const (
	X86_REX   = 0x40
	X86_REX_W = 0x08
	X86_REX_R = 0x04
	X86_REX_X = 0x02
	X86_REX_B = 0x01
)

// ModRM modes
const (
	X86_MOD_INDIRECT_DISP32 = 0x02
	X86_MOD_REGISTER        = 0x03
)

// SIB byte for [base] with no index; base bits are or'ed in.
const X86_SIB_NO_INDEX = 0x20

// Opcodes
const (
	X86_OP_ADD_RM_R      = 0x01 // ADD r/m, r
	X86_OP_PUSH_R        = 0x50 // PUSH r64 (+ reg)
	X86_OP_PUSH_IMM32    = 0x68 // PUSH imm32
	X86_OP_GROUP1_RM_IMM = 0x81 // Group 1 with imm32
	X86_OP_GROUP1_RM_IB  = 0x83 // Group 1 with sign-extended imm8
	X86_OP_MOV_RM_R      = 0x89 // MOV r/m, r
	X86_OP_MOV_R_RM      = 0x8B // MOV r, r/m
	X86_OP_MOV_R_IMM     = 0xB8 // MOV r, imm (+ reg)
	X86_OP_GROUP2_RM_IB  = 0xC1 // Group 2 shifts with imm8
	X86_OP_RET           = 0xC3
	X86_OP_MOV_RM_IMM    = 0xC7 // MOV r/m, imm32
	X86_OP_INT3          = 0xCC
	X86_OP_GROUP3_RM_IMM = 0xF7 // TEST r/m, imm32 (/0)
	X86_OP_JMP_REL32     = 0xE9
	X86_OP_GROUP5_RM     = 0xFF // INC, DEC, CALL, JMP, PUSH
	X86_OP_2BYTE         = 0x0F
	X86_OP2_JCC_REL32    = 0x80 // + condition
)

// Group 1 /digit
const (
	X86_G1_ADD = 0
	X86_G1_AND = 4
	X86_G1_SUB = 5
	X86_G1_XOR = 6
	X86_G1_CMP = 7
)

// Group 2, 3 and 5 /digit
const (
	X86_G2_SHR  = 5
	X86_G3_TEST = 0
	X86_G5_CALL = 2
)
